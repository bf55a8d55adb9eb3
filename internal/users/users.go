// Package users resolves acting users and their workflow roles.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// User is a warehouse operator account.
type User struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Role      workflow.Role `json:"role"`
	CreatedAt time.Time     `json:"created_at"`
}

// Repository reads the users table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Repository over the given pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID fetches a user by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, workflow.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if !u.Role.IsValid() {
		return User{}, workflow.ErrForbidden
	}
	return u, nil
}

// GetRole resolves the user's workflow role. Unknown users and users whose
// stored role is not one of the three workflow roles are rejected.
func (r *Repository) GetRole(ctx context.Context, userID int64) (workflow.Role, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}
