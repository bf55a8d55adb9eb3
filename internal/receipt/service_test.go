package receipt

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-wms/stockroom/internal/ledger"
	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// memRepo is a map-backed Repository mirroring the SQL implementation's
// transactional behavior: a failed transition rolls everything back.
type memRepo struct {
	nextID int64
	docs   map[int64]*GoodsReceipt
	ledger *ledger.Memory
}

func newMemRepo(led *ledger.Memory) *memRepo {
	return &memRepo{docs: make(map[int64]*GoodsReceipt), ledger: led}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	docsSnap := make(map[int64]*GoodsReceipt, len(r.docs))
	for id, doc := range r.docs {
		copied := *doc
		copied.Lines = append([]Line(nil), doc.Lines...)
		docsSnap[id] = &copied
	}
	ledgerSnap := r.ledger.Snapshot()
	idSnap := r.nextID

	if err := fn(ctx, r); err != nil {
		r.docs = docsSnap
		r.ledger.Restore(ledgerSnap)
		r.nextID = idSnap
		return err
	}
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id int64) (*GoodsReceipt, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	copied := *doc
	copied.Lines = append([]Line(nil), doc.Lines...)
	return &copied, nil
}

func (r *memRepo) List(ctx context.Context, req ListRequest) ([]GoodsReceipt, int, error) {
	var docs []GoodsReceipt
	for _, doc := range r.docs {
		if req.Status != nil && doc.Status != *req.Status {
			continue
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, len(docs), nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, id int64) (*GoodsReceipt, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) GetByTokenForUpdate(ctx context.Context, token string) (*GoodsReceipt, error) {
	for _, doc := range r.docs {
		if doc.ConfirmationToken != nil && *doc.ConfirmationToken == token {
			return r.GetByID(ctx, doc.ID)
		}
	}
	return nil, workflow.ErrNotFound
}

func (r *memRepo) Insert(ctx context.Context, doc GoodsReceipt) (int64, error) {
	r.nextID++
	doc.ID = r.nextID
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	r.docs[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memRepo) InsertLine(ctx context.Context, line Line) error {
	doc, ok := r.docs[line.ReceiptID]
	if !ok {
		return workflow.ErrNotFound
	}
	line.ID = int64(len(doc.Lines) + 1)
	doc.Lines = append(doc.Lines, line)
	return nil
}

func (r *memRepo) DeleteLines(ctx context.Context, receiptID int64) error {
	doc, ok := r.docs[receiptID]
	if !ok {
		return workflow.ErrNotFound
	}
	doc.Lines = nil
	return nil
}

func (r *memRepo) Update(ctx context.Context, id int64, updates map[string]any) error {
	doc, ok := r.docs[id]
	if !ok {
		return workflow.ErrNotFound
	}
	applyReceiptUpdates(doc, updates)
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error {
	if err := r.Update(ctx, id, updates); err != nil {
		return err
	}
	r.docs[id].Status = status
	return nil
}

func (r *memRepo) Ledger() ledger.Store { return r.ledger }

func (r *memRepo) LockScope(ctx context.Context, scope string) error { return nil }

func (r *memRepo) LatestNumber(ctx context.Context, scope string) (string, bool, error) {
	latest := ""
	for _, doc := range r.docs {
		if strings.HasPrefix(doc.Number, scope) && doc.Number > latest {
			latest = doc.Number
		}
	}
	return latest, latest != "", nil
}

func applyReceiptUpdates(doc *GoodsReceipt, updates map[string]any) {
	for key, value := range updates {
		switch key {
		case "approved_by":
			switch v := value.(type) {
			case int64:
				doc.ApprovedBy = &v
			case nil:
				doc.ApprovedBy = nil
			}
		case "approved_at":
			switch v := value.(type) {
			case time.Time:
				doc.ApprovedAt = &v
			case nil:
				doc.ApprovedAt = nil
			}
		case "approval_notes":
			switch v := value.(type) {
			case *string:
				doc.ApprovalNotes = v
			case nil:
				doc.ApprovalNotes = nil
			}
		case "confirmation_token":
			switch v := value.(type) {
			case string:
				doc.ConfirmationToken = &v
			case nil:
				doc.ConfirmationToken = nil
			}
		case "supplier_confirmed_at":
			v := value.(time.Time)
			doc.SupplierConfirmedAt = &v
		case "completed_by":
			v := value.(int64)
			doc.CompletedBy = &v
		case "completed_at":
			v := value.(time.Time)
			doc.CompletedAt = &v
		case "notes":
			doc.Notes = value.(*string)
		case "total_amount":
			doc.TotalAmount = value.(decimal.Decimal)
		}
	}
}

const (
	adminID    int64 = 1
	managerID  int64 = 2
	employeeID int64 = 3
	otherEmpID int64 = 4

	supplierID int64 = 7
)

type fakeUsers struct{}

func (fakeUsers) GetRole(ctx context.Context, userID int64) (workflow.Role, error) {
	switch userID {
	case adminID:
		return workflow.RoleAdmin, nil
	case managerID:
		return workflow.RoleManager, nil
	case employeeID, otherEmpID:
		return workflow.RoleEmployee, nil
	default:
		return "", workflow.ErrNotFound
	}
}

type fakeCatalog struct{}

func (fakeCatalog) Exists(ctx context.Context, productID int64) (bool, error) {
	return productID < 100, nil
}

type fakeSuppliers struct{}

func (fakeSuppliers) Exists(ctx context.Context, id int64) (bool, error) {
	return id == supplierID, nil
}

func (fakeSuppliers) Contact(ctx context.Context, id int64) (SupplierContact, error) {
	if id != supplierID {
		return SupplierContact{}, workflow.ErrNotFound
	}
	return SupplierContact{Name: "Nordwind Logistics", Email: "orders@nordwind.example"}, nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
	PDF     []byte
}

type captureNotifier struct {
	sent []sentMail
}

func (n *captureNotifier) SendWithAttachment(ctx context.Context, to, subject, htmlBody string, attachment []byte) (bool, error) {
	n.sent = append(n.sent, sentMail{To: to, Subject: subject, Body: htmlBody, PDF: attachment})
	return true, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, snap Snapshot) ([]byte, error) {
	return []byte("%PDF-fake " + snap.Number), nil
}

func newTestService(t *testing.T) (*Service, *ledger.Memory, *captureNotifier, *memRepo) {
	t.Helper()
	led := ledger.NewMemory()
	repo := newMemRepo(led)
	notifier := &captureNotifier{}
	svc := NewService(repo, fakeUsers{}, fakeCatalog{}, fakeSuppliers{},
		nil, notifier, fakeRenderer{}, "http://wms.example", slog.Default())
	return svc, led, notifier, repo
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func receiptLines(lines ...LineRequest) []LineRequest { return lines }

func tokenOf(t *testing.T, repo *memRepo, id int64) string {
	t.Helper()
	doc := repo.docs[id]
	require.NotNil(t, doc.ConfirmationToken)
	return *doc.ConfirmationToken
}

func TestCreateEmployeeAwaitsApproval(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 20, UnitPrice: price("2.50")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, doc.Status)
	require.Nil(t, doc.ConfirmationToken)
	require.True(t, doc.TotalAmount.Equal(price("50.00")))
	require.Equal(t, "GR"+time.Now().Format("20060102")+"001", doc.Number)
	require.Empty(t, notifier.sent)
}

func TestCreateManagerGoesStraightToPending(t *testing.T) {
	svc, _, notifier, repo := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 5, UnitPrice: price("4.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, doc.Status)
	require.NotNil(t, doc.ApprovedBy)
	require.Equal(t, managerID, *doc.ApprovedBy)

	token := tokenOf(t, repo, doc.ID)
	require.NotEmpty(t, token)

	require.Len(t, notifier.sent, 1)
	mail := notifier.sent[0]
	require.Equal(t, "orders@nordwind.example", mail.To)
	require.Contains(t, mail.Subject, doc.Number)
	require.Contains(t, mail.Body, token)
	require.Contains(t, mail.Body, "http://wms.example/receipts/confirm")
	require.NotEmpty(t, mail.PDF)
}

func TestApproveIssuesTokenAndNotifies(t *testing.T) {
	svc, _, notifier, repo := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 20, UnitPrice: price("2.50")}),
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, doc.ID, employeeID, DecisionRequest{})
	require.ErrorIs(t, err, workflow.ErrForbidden)

	doc, err = svc.Approve(ctx, doc.ID, managerID, DecisionRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusPending, doc.Status)
	require.NotEmpty(t, tokenOf(t, repo, doc.ID))
	require.Len(t, notifier.sent, 1)
}

func TestConfirmAcceptCompletesAndIncrements(t *testing.T) {
	svc, led, _, repo := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 20, UnitPrice: price("2.50")}),
	})
	require.NoError(t, err)
	token := tokenOf(t, repo, doc.ID)

	doc, err = svc.ConfirmSupplier(ctx, token, true)
	require.NoError(t, err)
	require.Equal(t, StatusSupplierConfirmed, doc.Status)
	require.NotNil(t, doc.SupplierConfirmedAt)
	require.Nil(t, doc.ConfirmationToken)

	// Stock is still untouched until completion.
	qty, found, _ := led.Quantity(ctx, 1)
	require.False(t, found)
	require.Zero(t, qty)

	doc, err = svc.Complete(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, doc.Status)
	qty, found, _ = led.Quantity(ctx, 1)
	require.True(t, found)
	require.EqualValues(t, 20, qty)
}

func TestConfirmDeclineCancels(t *testing.T) {
	svc, led, _, repo := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 20, UnitPrice: price("2.50")}),
	})
	require.NoError(t, err)
	token := tokenOf(t, repo, doc.ID)

	doc, err = svc.ConfirmSupplier(ctx, token, false)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, doc.Status)
	require.Nil(t, doc.ConfirmationToken)

	_, found, _ := led.Quantity(ctx, 1)
	require.False(t, found)
}

func TestTokenIsSingleUse(t *testing.T) {
	svc, _, _, repo := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	token := tokenOf(t, repo, doc.ID)

	_, err = svc.ConfirmSupplier(ctx, token, true)
	require.NoError(t, err)

	// Replaying either outcome with the consumed token is rejected without
	// touching the document.
	_, err = svc.ConfirmSupplier(ctx, token, false)
	require.ErrorIs(t, err, workflow.ErrInvalidToken)

	got, err := svc.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSupplierConfirmed, got.Status)
}

func TestConfirmUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ConfirmSupplier(ctx, "nope", true)
	require.ErrorIs(t, err, workflow.ErrInvalidToken)

	_, err = svc.ConfirmSupplier(ctx, "", true)
	require.ErrorIs(t, err, workflow.ErrInvalidToken)
}

func TestCompleteRequiresSupplierConfirmation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, doc.Status)

	_, err = svc.Complete(ctx, doc.ID, managerID)
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestEmployeeMayComplete(t *testing.T) {
	svc, led, _, repo := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 2, Quantity: 7, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	_, err = svc.ConfirmSupplier(ctx, tokenOf(t, repo, doc.ID), true)
	require.NoError(t, err)

	done, err := svc.Complete(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedBy)
	require.Equal(t, employeeID, *done.CompletedBy)

	qty, _, _ := led.Quantity(ctx, 2)
	require.EqualValues(t, 7, qty)
}

func TestCancelAwaitingIsCreatorOnly(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, doc.ID, managerID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	cancelled, err := svc.Cancel(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestRejectAndResubmitClearsApprovalTrail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)

	notes := "supplier not yet vetted"
	doc, err = svc.Reject(ctx, doc.ID, adminID, DecisionRequest{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, doc.Status)
	require.NotNil(t, doc.ApprovalNotes)

	_, err = svc.Resubmit(ctx, doc.ID, otherEmpID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	doc, err = svc.Resubmit(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, doc.Status)
	// The next approval pass starts clean.
	require.Nil(t, doc.ApprovalNotes)
	require.Nil(t, doc.ApprovedBy)
}

func TestDraftSubmitFlow(t *testing.T) {
	svc, _, notifier, repo := newTestService(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Draft:      true,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)
	require.Empty(t, notifier.sent)

	doc, err := svc.Submit(ctx, draft.ID, managerID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, doc.Status)
	require.NotEmpty(t, tokenOf(t, repo, doc.ID))
	require.Len(t, notifier.sent, 1)
}

func TestReplaceLinesRecomputesTotal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 2, UnitPrice: price("3.00")}),
	})
	require.NoError(t, err)
	require.True(t, doc.TotalAmount.Equal(price("6.00")))

	doc, err = svc.ReplaceLines(ctx, doc.ID, employeeID, ReplaceLinesRequest{
		Lines: receiptLines(LineRequest{ProductID: 2, Quantity: 4, UnitPrice: price("2.00")}),
	})
	require.NoError(t, err)
	require.True(t, doc.TotalAmount.Equal(price("8.00")))
	require.Len(t, doc.Lines, 1)
}

func TestCreateRejectsUnknownSupplier(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, employeeID, CreateRequest{
		SupplierID: 999,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestActionsOnPendingReceipt(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		SupplierID: supplierID,
		Lines:      receiptLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)

	// Pending receipts wait on the supplier; nothing internal applies.
	actions, err := svc.Actions(ctx, doc.ID, managerID)
	require.NoError(t, err)
	require.Empty(t, actions)
}
