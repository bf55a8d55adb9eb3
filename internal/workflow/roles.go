// Package workflow holds the pieces shared by both document engines:
// the role model, the transition policy table and the error taxonomy.
package workflow

// Role enumerates the user roles known to the workflow engines.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

// IsValid checks if the role is one of the closed set.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

// IsManagerial reports whether the role may approve documents.
func (r Role) IsManagerial() bool {
	return r == RoleAdmin || r == RoleManager
}

// Actor identifies the user invoking a transition.
type Actor struct {
	ID   int64
	Role Role
}
