// Package issue provides the goods issue document workflow engine.
package issue

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// Status represents the lifecycle of a goods issue.
type Status string

const (
	StatusDraft            Status = "DRAFT"             // Saved without submission, can be edited
	StatusAwaitingApproval Status = "AWAITING_APPROVAL" // Waiting for a manager decision
	StatusApproved         Status = "APPROVED"          // Approved, stock still untouched
	StatusPreparing        Status = "PREPARING"         // Picking started, stock decremented
	StatusDelivered        Status = "DELIVERED"         // Goods handed over
	StatusCompleted        Status = "COMPLETED"         // Terminal
	StatusRejected         Status = "REJECTED"          // Approval declined, resubmittable
	StatusCancelled        Status = "CANCELLED"         // Terminal
)

// IsValid checks if the status is one of the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusAwaitingApproval, StatusApproved, StatusPreparing,
		StatusDelivered, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition may fire.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanEdit checks if line details may still be replaced.
func (s Status) CanEdit() bool {
	return s == StatusDraft || s == StatusAwaitingApproval
}

// CanCancel checks if the issue may be cancelled from this status.
// Rejected issues are resubmitted, not cancelled.
func (s Status) CanCancel() bool {
	switch s {
	case StatusDraft, StatusAwaitingApproval, StatusApproved, StatusPreparing, StatusDelivered:
		return true
	default:
		return false
	}
}

// RestoresStockOnCancel reports whether cancelling from this status must give
// the decremented stock back.
func (s Status) RestoresStockOnCancel() bool {
	return s == StatusPreparing || s == StatusDelivered
}

// GoodsIssue represents an outbound stock document: header plus lines.
type GoodsIssue struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	Status          Status          `json:"status"`
	DeliveryAddress *string         `json:"delivery_address,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	ApprovalNotes   *string         `json:"approval_notes,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CreatedBy       int64           `json:"created_by"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	PreparedBy      *int64          `json:"prepared_by,omitempty"`
	PreparedAt      *time.Time      `json:"prepared_at,omitempty"`
	DeliveredBy     *int64          `json:"delivered_by,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CompletedBy     *int64          `json:"completed_by,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []Line          `json:"lines,omitempty"`
}

// Line is one product position on a goods issue.
type Line struct {
	ID        int64           `json:"id"`
	IssueID   int64           `json:"issue_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal is Quantity × UnitPrice, derived rather than stored.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// TotalOf sums line subtotals.
func TotalOf(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// AvailableActions enumerates the legal next actions for the actor on a
// document in its current status. Pure derived view used by front-ends; the
// transitions themselves re-validate.
func AvailableActions(doc *GoodsIssue, actor workflow.Actor) []workflow.Action {
	var actions []workflow.Action
	add := func(a workflow.Action) {
		if workflow.Allowed(actor.Role, a) {
			actions = append(actions, a)
		}
	}
	switch doc.Status {
	case StatusDraft:
		if actor.ID == doc.CreatedBy {
			add(workflow.ActionSubmit)
		}
		add(workflow.ActionEditLines)
	case StatusAwaitingApproval:
		add(workflow.ActionApprove)
		add(workflow.ActionReject)
		add(workflow.ActionEditLines)
	case StatusApproved:
		add(workflow.ActionStartPreparing)
	case StatusPreparing:
		add(workflow.ActionMarkDelivered)
	case StatusDelivered:
		add(workflow.ActionCompleteIssue)
	case StatusRejected:
		if actor.ID == doc.CreatedBy {
			add(workflow.ActionResubmit)
		}
	}
	if doc.Status.CanCancel() && canCancel(doc, actor) {
		actions = append(actions, workflow.ActionCancel)
	}
	return actions
}

// canCancel applies the identity part of the cancel policy: employees may
// cancel only their own drafts, managerial roles any non-terminal issue.
func canCancel(doc *GoodsIssue, actor workflow.Actor) bool {
	if actor.Role.IsManagerial() {
		return true
	}
	return doc.Status == StatusDraft && doc.CreatedBy == actor.ID
}
