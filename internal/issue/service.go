package issue

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom-wms/stockroom/internal/numbering"
	"github.com/stockroom-wms/stockroom/internal/shared"
	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// UserDirectory resolves an acting user's role.
type UserDirectory interface {
	GetRole(ctx context.Context, userID int64) (workflow.Role, error)
}

// ProductCatalog answers product existence checks.
type ProductCatalog interface {
	Exists(ctx context.Context, productID int64) (bool, error)
}

// CustomerDirectory answers customer existence checks.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID int64) (bool, error)
}

// AuditPort records committed transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the goods issue workflow. Every transition is one
// atomic read-decide-write cycle: load under row lock, validate status then
// actor, apply ledger and field effects, commit.
type Service struct {
	repo      Repository
	users     UserDirectory
	products  ProductCatalog
	customers CustomerDirectory
	audit     AuditPort
	numbers   numbering.Generator
}

// NewService constructs the issue service.
func NewService(repo Repository, users UserDirectory, products ProductCatalog, customers CustomerDirectory, audit AuditPort) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		products:  products,
		customers: customers,
		audit:     audit,
		numbers:   numbering.NewGenerator("GI"),
	}
}

func (s *Service) actor(ctx context.Context, userID int64) (workflow.Actor, error) {
	role, err := s.users.GetRole(ctx, userID)
	if err != nil {
		return workflow.Actor{}, err
	}
	return workflow.Actor{ID: userID, Role: role}, nil
}

func (s *Service) buildLines(ctx context.Context, issueID int64, reqs []LineRequest) ([]Line, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", workflow.ErrValidation)
	}
	lines := make([]Line, 0, len(reqs))
	for i, req := range reqs {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d: quantity must be positive", workflow.ErrValidation, i+1)
		}
		if !req.UnitPrice.GreaterThan(decimal.Zero) {
			return nil, fmt.Errorf("%w: line %d: unit price must be positive", workflow.ErrValidation, i+1)
		}
		exists, err := s.products.Exists(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("check product %d: %w", req.ProductID, err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: product %d", workflow.ErrNotFound, req.ProductID)
		}
		lines = append(lines, Line{
			IssueID:   issueID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: req.UnitPrice,
		})
	}
	return lines, nil
}

// Create persists a new goods issue. Employee-created issues start awaiting
// approval; managerial creators are stamped as self-approved. Draft requests
// stay editable and outside the approval flow until submitted.
func (s *Service) Create(ctx context.Context, actorID int64, req CreateRequest) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != nil {
		exists, err := s.customers.Exists(ctx, *req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("check customer: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: customer %d", workflow.ErrNotFound, *req.CustomerID)
		}
	}
	lines, err := s.buildLines(ctx, 0, req.Lines)
	if err != nil {
		return nil, err
	}

	doc := GoodsIssue{
		CustomerID:      req.CustomerID,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		TotalAmount:     TotalOf(lines),
		CreatedBy:       actor.ID,
	}
	switch {
	case req.Draft:
		doc.Status = StatusDraft
	case actor.Role.IsManagerial():
		now := time.Now()
		doc.Status = StatusApproved
		doc.ApprovedBy = &actor.ID
		doc.ApprovedAt = &now
	default:
		doc.Status = StatusAwaitingApproval
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.numbers.Next(ctx, tx)
		if err != nil {
			return err
		}
		doc.Number = number
		id, err = tx.Insert(ctx, doc)
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		for _, line := range lines {
			line.IssueID = id
			if err := tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_CREATE", id, map[string]any{"number": doc.Number, "status": doc.Status})
	return s.repo.GetByID(ctx, id)
}

// Submit moves the creator's draft into the approval flow; managerial
// creators skip the gate the same way managerial creation does.
func (s *Service) Submit(ctx context.Context, id, actorID int64) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionSubmit) || doc.CreatedBy != actor.ID {
			return workflow.ErrForbidden
		}
		if actor.Role.IsManagerial() {
			now := time.Now()
			return tx.UpdateStatus(ctx, id, StatusApproved, map[string]any{
				"approved_by": actor.ID,
				"approved_at": now,
			})
		}
		return tx.UpdateStatus(ctx, id, StatusAwaitingApproval, nil)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_SUBMIT", id, nil)
	return s.repo.GetByID(ctx, id)
}

// ReplaceLines swaps the line details wholesale and recomputes the total.
// Only drafts and issues still awaiting approval may be edited.
func (s *Service) ReplaceLines(ctx context.Context, id, actorID int64, req ReplaceLinesRequest) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	lines, err := s.buildLines(ctx, id, req.Lines)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.Status.CanEdit() {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionEditLines) {
			return workflow.ErrForbidden
		}
		if !actor.Role.IsManagerial() && doc.CreatedBy != actor.ID {
			return workflow.ErrForbidden
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return tx.Update(ctx, id, map[string]any{"total_amount": TotalOf(lines)})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_EDIT_LINES", id, map[string]any{"lines": len(lines)})
	return s.repo.GetByID(ctx, id)
}

// Approve moves an awaiting issue to approved. Every line must be coverable
// by current stock or the transition is declined with the shortage detail.
func (s *Service) Approve(ctx context.Context, id, actorID int64, req DecisionRequest) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusAwaitingApproval {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionApprove) {
			return workflow.ErrForbidden
		}
		led := tx.Ledger()
		for _, line := range doc.Lines {
			available, _, err := led.Quantity(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if available < line.Quantity {
				return &workflow.InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: available,
				}
			}
		}
		now := time.Now()
		return tx.UpdateStatus(ctx, id, StatusApproved, map[string]any{
			"approved_by":    actor.ID,
			"approved_at":    now,
			"approval_notes": req.Notes,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_APPROVE", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Reject declines an awaiting issue, recording the reviewer's notes. No
// inventory check applies.
func (s *Service) Reject(ctx context.Context, id, actorID int64, req DecisionRequest) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusAwaitingApproval {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionReject) {
			return workflow.ErrForbidden
		}
		return tx.UpdateStatus(ctx, id, StatusRejected, map[string]any{
			"approval_notes": req.Notes,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_REJECT", id, nil)
	return s.repo.GetByID(ctx, id)
}

// StartPreparing decrements stock for every line inside the document's
// transaction. The first shortage aborts the whole transition, leaving every
// line's inventory and the status untouched.
func (s *Service) StartPreparing(ctx context.Context, id, actorID int64) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusApproved {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionStartPreparing) {
			return workflow.ErrForbidden
		}
		led := tx.Ledger()
		for _, line := range doc.Lines {
			ok, err := led.TryDecrement(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				available, _, err := led.Quantity(ctx, line.ProductID)
				if err != nil {
					return err
				}
				return &workflow.InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: available,
				}
			}
		}
		now := time.Now()
		return tx.UpdateStatus(ctx, id, StatusPreparing, map[string]any{
			"prepared_by": actor.ID,
			"prepared_at": now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_START_PREPARING", id, nil)
	return s.repo.GetByID(ctx, id)
}

// MarkDelivered records the handover. No inventory effect; stock moved when
// preparation started.
func (s *Service) MarkDelivered(ctx context.Context, id, actorID int64, req DeliverRequest) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusPreparing {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionMarkDelivered) {
			return workflow.ErrForbidden
		}
		now := time.Now()
		updates := map[string]any{
			"delivered_by": actor.ID,
			"delivered_at": now,
		}
		if req.DeliveryAddress != nil {
			updates["delivery_address"] = req.DeliveryAddress
		}
		if req.Notes != nil {
			updates["notes"] = req.Notes
		}
		return tx.UpdateStatus(ctx, id, StatusDelivered, updates)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_MARK_DELIVERED", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Complete closes a delivered issue. Deliberately no inventory effect: the
// physical stock movement happened at preparation time.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusDelivered {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionCompleteIssue) {
			return workflow.ErrForbidden
		}
		now := time.Now()
		return tx.UpdateStatus(ctx, id, StatusCompleted, map[string]any{
			"completed_by": actor.ID,
			"completed_at": now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_COMPLETE", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Cancel aborts a non-terminal issue. Employees may cancel only their own
// drafts. Cancelling after preparation restores the decremented stock, so a
// decrement followed by cancellation is a no-op on the ledger.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, req CancelRequest) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.Status.CanCancel() {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionCancel) || !canCancel(doc, actor) {
			return workflow.ErrForbidden
		}
		if doc.Status.RestoresStockOnCancel() {
			led := tx.Ledger()
			for _, line := range doc.Lines {
				if err := led.Increment(ctx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
		}
		updates := map[string]any{}
		if req.Reason != nil {
			updates["notes"] = req.Reason
		}
		return tx.UpdateStatus(ctx, id, StatusCancelled, updates)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_CANCEL", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Resubmit sends a rejected issue back for another approval pass. Only the
// original creator may resubmit; prior approval metadata is preserved.
func (s *Service) Resubmit(ctx context.Context, id, actorID int64) (*GoodsIssue, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusRejected {
			return workflow.ErrInvalidTransition
		}
		if doc.CreatedBy != actor.ID {
			return workflow.ErrForbidden
		}
		return tx.UpdateStatus(ctx, id, StatusAwaitingApproval, nil)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, "ISSUE_RESUBMIT", id, nil)
	return s.repo.GetByID(ctx, id)
}

// GetByID fetches the aggregate.
func (s *Service) GetByID(ctx context.Context, id int64) (*GoodsIssue, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a filtered page of issues.
func (s *Service) List(ctx context.Context, req ListRequest) ([]GoodsIssue, int, error) {
	return s.repo.List(ctx, req)
}

// Actions enumerates the legal next actions for the actor.
func (s *Service) Actions(ctx context.Context, id, actorID int64) ([]workflow.Action, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return AvailableActions(doc, actor), nil
}

func (s *Service) recordAudit(ctx context.Context, actor workflow.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "goods_issue",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
