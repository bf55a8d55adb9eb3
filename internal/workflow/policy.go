package workflow

// Action enumerates the guarded transitions of both document engines.
type Action string

const (
	ActionSubmit          Action = "SUBMIT"
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionStartPreparing  Action = "START_PREPARING"
	ActionMarkDelivered   Action = "MARK_DELIVERED"
	ActionCompleteIssue   Action = "COMPLETE_ISSUE"
	ActionCompleteReceipt Action = "COMPLETE_RECEIPT"
	ActionCancel          Action = "CANCEL"
	ActionResubmit        Action = "RESUBMIT"
	ActionEditLines       Action = "EDIT_LINES"
)

// policy is the single role gate consumed by every transition. Creator-only
// constraints (resubmit, employee draft cancel, receipt cancel) are enforced
// by the engines on top of this table.
var policy = map[Action]map[Role]bool{
	ActionSubmit: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
	ActionApprove: {RoleAdmin: true, RoleManager: true},
	ActionReject:  {RoleAdmin: true, RoleManager: true},
	ActionStartPreparing: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
	ActionMarkDelivered: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
	ActionCompleteIssue: {RoleAdmin: true, RoleManager: true},
	ActionCompleteReceipt: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
	ActionCancel: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
	ActionResubmit: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
	ActionEditLines: {
		RoleAdmin: true, RoleManager: true, RoleEmployee: true,
	},
}

// Allowed reports whether the role may execute the action at all.
func Allowed(role Role, action Action) bool {
	return policy[action][role]
}
