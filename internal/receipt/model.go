// Package receipt provides the goods receipt document workflow engine,
// including the external supplier confirmation step.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// Status represents the lifecycle of a goods receipt.
type Status string

const (
	StatusDraft             Status = "DRAFT"              // Saved without submission, can be edited
	StatusAwaitingApproval  Status = "AWAITING_APPROVAL"  // Waiting for a manager decision
	StatusPending           Status = "PENDING"            // Waiting for the supplier's confirmation
	StatusSupplierConfirmed Status = "SUPPLIER_CONFIRMED" // Supplier accepted, awaiting completion
	StatusCompleted         Status = "COMPLETED"          // Terminal, stock incremented
	StatusRejected          Status = "REJECTED"           // Approval declined, resubmittable
	StatusCancelled         Status = "CANCELLED"          // Terminal
)

// IsValid checks if the status is one of the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusAwaitingApproval, StatusPending, StatusSupplierConfirmed,
		StatusCompleted, StatusRejected, StatusCancelled:
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

// GoodsReceipt represents an inbound stock document: header plus lines.
// ConfirmationToken is the opaque single-use credential handed to the
// supplier; it is present only while the receipt is pending and cleared on
// first use regardless of outcome.
type GoodsReceipt struct {
	ID                  int64           `json:"id"`
	Number              string          `json:"number"`
	SupplierID          int64           `json:"supplier_id"`
	Status              Status          `json:"status"`
	Notes               *string         `json:"notes,omitempty"`
	ApprovalNotes       *string         `json:"approval_notes,omitempty"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	ConfirmationToken   *string         `json:"-"`
	CreatedBy           int64           `json:"created_by"`
	ApprovedBy          *int64          `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	SupplierConfirmedAt *time.Time      `json:"supplier_confirmed_at,omitempty"`
	CompletedBy         *int64          `json:"completed_by,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Lines               []Line          `json:"lines,omitempty"`
}

// Line is one product position on a goods receipt.
type Line struct {
	ID        int64           `json:"id"`
	ReceiptID int64           `json:"receipt_id"`
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
// receipt in its current status. The supplier confirmation itself is external
// and token-driven, so it never appears here.
func AvailableActions(doc *GoodsReceipt, actor workflow.Actor) []workflow.Action {
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
		if actor.ID == doc.CreatedBy {
			actions = append(actions, workflow.ActionCancel)
		}
	case StatusSupplierConfirmed:
		add(workflow.ActionCompleteReceipt)
	case StatusRejected:
		if actor.ID == doc.CreatedBy {
			add(workflow.ActionResubmit)
		}
	}
	return actions
}
