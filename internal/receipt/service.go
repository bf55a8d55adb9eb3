package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
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

// SupplierContact is the counterparty reached for confirmation.
type SupplierContact struct {
	Name  string
	Email string
}

// SupplierDirectory answers supplier lookups.
type SupplierDirectory interface {
	Exists(ctx context.Context, supplierID int64) (bool, error)
	Contact(ctx context.Context, supplierID int64) (SupplierContact, error)
}

// AuditPort records committed transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers the confirmation e-mail with the document PDF attached.
type Notifier interface {
	SendWithAttachment(ctx context.Context, to, subject, htmlBody string, attachment []byte) (bool, error)
}

// PdfRenderer renders a receipt snapshot to PDF bytes.
type PdfRenderer interface {
	Render(ctx context.Context, snap Snapshot) ([]byte, error)
}

// Service orchestrates the goods receipt workflow. The ledger is touched at
// exactly one point: completion.
type Service struct {
	repo      Repository
	users     UserDirectory
	products  ProductCatalog
	suppliers SupplierDirectory
	audit     AuditPort
	notifier  Notifier
	renderer  PdfRenderer
	baseURL   string
	numbers   numbering.Generator
	logger    *slog.Logger
}

// NewService constructs the receipt service. baseURL is the public address
// embedded in the supplier confirm/decline links.
func NewService(repo Repository, users UserDirectory, products ProductCatalog, suppliers SupplierDirectory,
	audit AuditPort, notifier Notifier, renderer PdfRenderer, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		products:  products,
		suppliers: suppliers,
		audit:     audit,
		notifier:  notifier,
		renderer:  renderer,
		baseURL:   baseURL,
		numbers:   numbering.NewGenerator("GR"),
		logger:    logger,
	}
}

func (s *Service) actor(ctx context.Context, userID int64) (workflow.Actor, error) {
	role, err := s.users.GetRole(ctx, userID)
	if err != nil {
		return workflow.Actor{}, err
	}
	return workflow.Actor{ID: userID, Role: role}, nil
}

func (s *Service) buildLines(ctx context.Context, receiptID int64, reqs []LineRequest) ([]Line, error) {
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
			ReceiptID: receiptID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			UnitPrice: req.UnitPrice,
		})
	}
	return lines, nil
}

// Create persists a new goods receipt. Employee-created receipts wait for the
// internal approval gate; managerial creators go straight to pending, which
// immediately triggers the supplier notification.
func (s *Service) Create(ctx context.Context, actorID int64, req CreateRequest) (*GoodsReceipt, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	exists, err := s.suppliers.Exists(ctx, req.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("check supplier: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: supplier %d", workflow.ErrNotFound, req.SupplierID)
	}
	lines, err := s.buildLines(ctx, 0, req.Lines)
	if err != nil {
		return nil, err
	}

	doc := GoodsReceipt{
		SupplierID:  req.SupplierID,
		Notes:       req.Notes,
		TotalAmount: TotalOf(lines),
		CreatedBy:   actor.ID,
	}
	switch {
	case req.Draft:
		doc.Status = StatusDraft
	case actor.Role.IsManagerial():
		now := time.Now()
		token := uuid.NewString()
		doc.Status = StatusPending
		doc.ApprovedBy = &actor.ID
		doc.ApprovedAt = &now
		doc.ConfirmationToken = &token
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
			return fmt.Errorf("insert receipt: %w", err)
		}
		for _, line := range lines {
			line.ReceiptID = id
			if err := tx.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "RECEIPT_CREATE", id, map[string]any{"number": doc.Number, "status": doc.Status})

	created, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created.Status == StatusPending {
		s.notifySupplier(ctx, created)
	}
	return created, nil
}

// Submit moves the creator's draft into the flow; managerial creators skip
// the approval gate and the supplier is notified right away.
func (s *Service) Submit(ctx context.Context, id, actorID int64) (*GoodsReceipt, error) {
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
			return tx.UpdateStatus(ctx, id, StatusPending, map[string]any{
				"approved_by":        actor.ID,
				"approved_at":        now,
				"confirmation_token": uuid.NewString(),
			})
		}
		return tx.UpdateStatus(ctx, id, StatusAwaitingApproval, nil)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "RECEIPT_SUBMIT", id, nil)

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusPending {
		s.notifySupplier(ctx, doc)
	}
	return doc, nil
}

// ReplaceLines swaps the line details wholesale and recomputes the total.
func (s *Service) ReplaceLines(ctx context.Context, id, actorID int64, req ReplaceLinesRequest) (*GoodsReceipt, error) {
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
	s.recordAudit(ctx, actor.ID, "RECEIPT_EDIT_LINES", id, map[string]any{"lines": len(lines)})
	return s.repo.GetByID(ctx, id)
}

// Approve moves an awaiting receipt to pending, issues a fresh confirmation
// token when none exists yet and dispatches the supplier e-mail.
func (s *Service) Approve(ctx context.Context, id, actorID int64, req DecisionRequest) (*GoodsReceipt, error) {
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
		now := time.Now()
		updates := map[string]any{
			"approved_by":    actor.ID,
			"approved_at":    now,
			"approval_notes": req.Notes,
		}
		if doc.ConfirmationToken == nil {
			updates["confirmation_token"] = uuid.NewString()
		}
		return tx.UpdateStatus(ctx, id, StatusPending, updates)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "RECEIPT_APPROVE", id, nil)

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifySupplier(ctx, doc)
	return doc, nil
}

// Reject declines an awaiting receipt, recording the reviewer's notes.
func (s *Service) Reject(ctx context.Context, id, actorID int64, req DecisionRequest) (*GoodsReceipt, error) {
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
	s.recordAudit(ctx, actor.ID, "RECEIPT_REJECT", id, nil)
	return s.repo.GetByID(ctx, id)
}

// ConfirmSupplier consumes a confirmation token presented by the external
// supplier. The token is single-use: it is cleared on first successful use
// regardless of outcome, and an unknown or already consumed token is rejected
// without any state change.
func (s *Service) ConfirmSupplier(ctx context.Context, token string, confirmed bool) (*GoodsReceipt, error) {
	if token == "" {
		return nil, workflow.ErrInvalidToken
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetByTokenForUpdate(ctx, token)
		if err != nil {
			if err == workflow.ErrNotFound {
				return workflow.ErrInvalidToken
			}
			return err
		}
		if doc.Status != StatusPending {
			return workflow.ErrInvalidToken
		}
		id = doc.ID
		updates := map[string]any{"confirmation_token": nil}
		if confirmed {
			now := time.Now()
			updates["supplier_confirmed_at"] = now
			return tx.UpdateStatus(ctx, doc.ID, StatusSupplierConfirmed, updates)
		}
		return tx.UpdateStatus(ctx, doc.ID, StatusCancelled, updates)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, 0, "RECEIPT_SUPPLIER_CONFIRM", id, map[string]any{"confirmed": confirmed})
	return s.repo.GetByID(ctx, id)
}

// Complete books the received goods: every line's quantity is added to the
// ledger, creating records for first-seen products. This is the only point at
// which a receipt affects stock.
func (s *Service) Complete(ctx context.Context, id, actorID int64) (*GoodsReceipt, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusSupplierConfirmed {
			return workflow.ErrInvalidTransition
		}
		if !workflow.Allowed(actor.Role, workflow.ActionCompleteReceipt) {
			return workflow.ErrForbidden
		}
		led := tx.Ledger()
		for _, line := range doc.Lines {
			if err := led.Increment(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
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
	s.recordAudit(ctx, actor.ID, "RECEIPT_COMPLETE", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Cancel aborts a receipt still awaiting approval. Creator-only.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (*GoodsReceipt, error) {
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
		if doc.CreatedBy != actor.ID {
			return workflow.ErrForbidden
		}
		return tx.UpdateStatus(ctx, id, StatusCancelled, nil)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "RECEIPT_CANCEL", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Resubmit sends a rejected receipt back for another approval pass. Only the
// original creator may resubmit. Unlike issues, prior approval metadata is
// cleared so the next pass starts clean.
func (s *Service) Resubmit(ctx context.Context, id, actorID int64) (*GoodsReceipt, error) {
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
		return tx.UpdateStatus(ctx, id, StatusAwaitingApproval, map[string]any{
			"approved_by":    nil,
			"approved_at":    nil,
			"approval_notes": nil,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor.ID, "RECEIPT_RESUBMIT", id, nil)
	return s.repo.GetByID(ctx, id)
}

// GetByID fetches the aggregate.
func (s *Service) GetByID(ctx context.Context, id int64) (*GoodsReceipt, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a filtered page of receipts.
func (s *Service) List(ctx context.Context, req ListRequest) ([]GoodsReceipt, int, error) {
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

// notifySupplier renders the PDF and dispatches the confirmation e-mail.
// Best effort: a failed notification leaves the receipt pending and is
// logged, it never rolls the transition back.
func (s *Service) notifySupplier(ctx context.Context, doc *GoodsReceipt) {
	if s.notifier == nil || doc.ConfirmationToken == nil {
		return
	}
	contact, err := s.suppliers.Contact(ctx, doc.SupplierID)
	if err != nil {
		s.logWarn("supplier contact lookup failed", doc.Number, err)
		return
	}
	snap := SnapshotOf(doc, contact.Name)
	subject, body, err := ConfirmationEmail(snap, s.baseURL, *doc.ConfirmationToken)
	if err != nil {
		s.logWarn("build confirmation email", doc.Number, err)
		return
	}
	var pdf []byte
	if s.renderer != nil {
		if pdf, err = s.renderer.Render(ctx, snap); err != nil {
			s.logWarn("render receipt pdf", doc.Number, err)
			pdf = nil
		}
	}
	if ok, err := s.notifier.SendWithAttachment(ctx, contact.Email, subject, body, pdf); err != nil || !ok {
		s.logWarn("send confirmation email", doc.Number, err)
	}
}

func (s *Service) logWarn(msg, number string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, slog.String("number", number), slog.Any("error", err))
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "goods_receipt",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
