package issue

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-wms/stockroom/internal/ledger"
	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// memRepo is a map-backed Repository. WithTx snapshots document and ledger
// state so a failed transition rolls back the same way the SQL path does.
type memRepo struct {
	nextID int64
	docs   map[int64]*GoodsIssue
	ledger *ledger.Memory
}

func newMemRepo(led *ledger.Memory) *memRepo {
	return &memRepo{docs: make(map[int64]*GoodsIssue), ledger: led}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	docsSnap := make(map[int64]*GoodsIssue, len(r.docs))
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

func (r *memRepo) GetByID(ctx context.Context, id int64) (*GoodsIssue, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	copied := *doc
	copied.Lines = append([]Line(nil), doc.Lines...)
	return &copied, nil
}

func (r *memRepo) List(ctx context.Context, req ListRequest) ([]GoodsIssue, int, error) {
	var docs []GoodsIssue
	for _, doc := range r.docs {
		if req.Status != nil && doc.Status != *req.Status {
			continue
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, len(docs), nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, id int64) (*GoodsIssue, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) Insert(ctx context.Context, doc GoodsIssue) (int64, error) {
	r.nextID++
	doc.ID = r.nextID
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	r.docs[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memRepo) InsertLine(ctx context.Context, line Line) error {
	doc, ok := r.docs[line.IssueID]
	if !ok {
		return workflow.ErrNotFound
	}
	line.ID = int64(len(doc.Lines) + 1)
	doc.Lines = append(doc.Lines, line)
	return nil
}

func (r *memRepo) DeleteLines(ctx context.Context, issueID int64) error {
	doc, ok := r.docs[issueID]
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
	applyIssueUpdates(doc, updates)
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

func applyIssueUpdates(doc *GoodsIssue, updates map[string]any) {
	for key, value := range updates {
		switch key {
		case "approved_by":
			v := value.(int64)
			doc.ApprovedBy = &v
		case "approved_at":
			v := value.(time.Time)
			doc.ApprovedAt = &v
		case "approval_notes":
			doc.ApprovalNotes = value.(*string)
		case "prepared_by":
			v := value.(int64)
			doc.PreparedBy = &v
		case "prepared_at":
			v := value.(time.Time)
			doc.PreparedAt = &v
		case "delivered_by":
			v := value.(int64)
			doc.DeliveredBy = &v
		case "delivered_at":
			v := value.(time.Time)
			doc.DeliveredAt = &v
		case "completed_by":
			v := value.(int64)
			doc.CompletedBy = &v
		case "completed_at":
			v := value.(time.Time)
			doc.CompletedAt = &v
		case "delivery_address":
			doc.DeliveryAddress = value.(*string)
		case "notes":
			doc.Notes = value.(*string)
		case "total_amount":
			doc.TotalAmount = value.(decimal.Decimal)
		}
	}
}

// Fixed actors across the tests.
const (
	adminID    int64 = 1
	managerID  int64 = 2
	employeeID int64 = 3
	otherEmpID int64 = 4
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

type fakeCustomers struct{}

func (fakeCustomers) Exists(ctx context.Context, customerID int64) (bool, error) {
	return customerID < 100, nil
}

func newTestService(t *testing.T) (*Service, *ledger.Memory) {
	t.Helper()
	led := ledger.NewMemory()
	repo := newMemRepo(led)
	svc := NewService(repo, fakeUsers{}, fakeCatalog{}, fakeCustomers{}, nil)
	return svc, led
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func issueLines(lines ...LineRequest) []LineRequest { return lines }

func TestCreateEmployeeAwaitsApproval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 5, UnitPrice: price("10.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, doc.Status)
	require.Nil(t, doc.ApprovedBy)
	require.Equal(t, employeeID, doc.CreatedBy)
	require.True(t, doc.TotalAmount.Equal(price("50.00")))

	wantPrefix := "GI" + time.Now().Format("20060102")
	require.Equal(t, wantPrefix+"001", doc.Number)

	second, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 2, Quantity: 1, UnitPrice: price("3.50")}),
	})
	require.NoError(t, err)
	require.Equal(t, wantPrefix+"002", second.Number)
}

func TestCreateManagerAutoApproved(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 2, UnitPrice: price("7.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)
	require.NotNil(t, doc.ApprovedBy)
	require.Equal(t, managerID, *doc.ApprovedBy)
	require.NotNil(t, doc.ApprovedAt)
}

func TestFullLifecycleDecrementsOnce(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	led.Seed(1, 10)

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 4, UnitPrice: price("10.00")}),
	})
	require.NoError(t, err)

	doc, err = svc.Approve(ctx, doc.ID, managerID, DecisionRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)

	// Approval only checks availability, stock is untouched.
	qty, _, _ := led.Quantity(ctx, 1)
	require.EqualValues(t, 10, qty)

	doc, err = svc.StartPreparing(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusPreparing, doc.Status)
	qty, _, _ = led.Quantity(ctx, 1)
	require.EqualValues(t, 6, qty)

	doc, err = svc.MarkDelivered(ctx, doc.ID, employeeID, DeliverRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, doc.Status)

	// Completion is managerial-only and moves no stock.
	_, err = svc.Complete(ctx, doc.ID, employeeID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	doc, err = svc.Complete(ctx, doc.ID, managerID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, doc.Status)
	qty, _, _ = led.Quantity(ctx, 1)
	require.EqualValues(t, 6, qty)
}

func TestApproveDeclinesOnShortage(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	led.Seed(1, 100)
	led.Seed(2, 4)

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(
			LineRequest{ProductID: 1, Quantity: 10, UnitPrice: price("1.00")},
			LineRequest{ProductID: 2, Quantity: 5, UnitPrice: price("1.00")},
		),
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, doc.ID, managerID, DecisionRequest{})
	var shortage *workflow.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	require.EqualValues(t, 2, shortage.ProductID)
	require.EqualValues(t, 5, shortage.Requested)
	require.EqualValues(t, 4, shortage.Available)
	require.EqualValues(t, 1, shortage.Short())

	got, err := svc.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, got.Status)
}

func TestStartPreparingAllOrNothing(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	led.Seed(1, 100)
	led.Seed(2, 3)

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		Lines: issueLines(
			LineRequest{ProductID: 1, Quantity: 10, UnitPrice: price("1.00")},
			LineRequest{ProductID: 2, Quantity: 5, UnitPrice: price("1.00")},
		),
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)

	_, err = svc.StartPreparing(ctx, doc.ID, managerID)
	var shortage *workflow.InsufficientStockError
	require.ErrorAs(t, err, &shortage)
	require.EqualValues(t, 2, shortage.ProductID)

	// The first line's decrement must have been rolled back with the rest.
	qty, _, _ := led.Quantity(ctx, 1)
	require.EqualValues(t, 100, qty)
	got, err := svc.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
}

func TestCancelAfterPreparingRestoresStock(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	led.Seed(1, 20)

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 8, UnitPrice: price("2.00")}),
	})
	require.NoError(t, err)

	doc, err = svc.StartPreparing(ctx, doc.ID, managerID)
	require.NoError(t, err)
	qty, _, _ := led.Quantity(ctx, 1)
	require.EqualValues(t, 12, qty)

	reason := "customer withdrew the order"
	doc, err = svc.Cancel(ctx, doc.ID, managerID, CancelRequest{Reason: &reason})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, doc.Status)

	// Decrement then cancel nets out to a ledger no-op.
	qty, _, _ = led.Quantity(ctx, 1)
	require.EqualValues(t, 20, qty)
}

func TestCancelBeforePreparingLeavesStockAlone(t *testing.T) {
	svc, led := newTestService(t)
	ctx := context.Background()
	led.Seed(1, 20)

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 8, UnitPrice: price("2.00")}),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, doc.ID, managerID, CancelRequest{})
	require.NoError(t, err)
	qty, _, _ := led.Quantity(ctx, 1)
	require.EqualValues(t, 20, qty)
}

func TestEmployeeCancelOwnDraftOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, employeeID, CreateRequest{
		Draft: true,
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)

	_, err = svc.Cancel(ctx, draft.ID, otherEmpID, CancelRequest{})
	require.ErrorIs(t, err, workflow.ErrForbidden)

	cancelled, err := svc.Cancel(ctx, draft.ID, employeeID, CancelRequest{})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestEmployeeCannotCancelAwaitingIssue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, doc.Status)

	_, err = svc.Cancel(ctx, doc.ID, employeeID, CancelRequest{})
	require.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestStatusCheckedBeforeRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)

	// Employee approving an already approved issue: wrong state wins over
	// wrong actor.
	_, err = svc.Approve(ctx, doc.ID, employeeID, DecisionRequest{})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestRejectAndResubmit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)

	notes := "wrong customer"
	doc, err = svc.Reject(ctx, doc.ID, adminID, DecisionRequest{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, doc.Status)
	require.NotNil(t, doc.ApprovalNotes)

	_, err = svc.Resubmit(ctx, doc.ID, otherEmpID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	doc, err = svc.Resubmit(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, doc.Status)
	// The rejection trail stays on the document.
	require.NotNil(t, doc.ApprovalNotes)
	require.Equal(t, "wrong customer", *doc.ApprovalNotes)
}

func TestReplaceLinesRecomputesTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 2, UnitPrice: price("5.00")}),
	})
	require.NoError(t, err)
	require.True(t, doc.TotalAmount.Equal(price("10.00")))

	doc, err = svc.ReplaceLines(ctx, doc.ID, employeeID, ReplaceLinesRequest{
		Lines: issueLines(
			LineRequest{ProductID: 1, Quantity: 3, UnitPrice: price("5.00")},
			LineRequest{ProductID: 2, Quantity: 1, UnitPrice: price("2.50")},
		),
	})
	require.NoError(t, err)
	require.Len(t, doc.Lines, 2)
	require.True(t, doc.TotalAmount.Equal(price("17.50")))

	// A different employee cannot edit someone else's issue.
	_, err = svc.ReplaceLines(ctx, doc.ID, otherEmpID, ReplaceLinesRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestReplaceLinesLockedAfterApproval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, managerID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)

	_, err = svc.ReplaceLines(ctx, doc.ID, managerID, ReplaceLinesRequest{
		Lines: issueLines(LineRequest{ProductID: 2, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestSubmitDraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, employeeID, CreateRequest{
		Draft: true,
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.ID, otherEmpID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	doc, err := svc.Submit(ctx, draft.ID, employeeID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, doc.Status)

	managerDraft, err := svc.Create(ctx, managerID, CreateRequest{
		Draft: true,
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)
	doc, err = svc.Submit(ctx, managerDraft.ID, managerID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, doc.Status)
}

func TestActionsReflectRoleAndStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.NoError(t, err)

	managerActions, err := svc.Actions(ctx, doc.ID, managerID)
	require.NoError(t, err)
	require.Contains(t, managerActions, workflow.ActionApprove)
	require.Contains(t, managerActions, workflow.ActionCancel)

	employeeActions, err := svc.Actions(ctx, doc.ID, employeeID)
	require.NoError(t, err)
	require.NotContains(t, employeeActions, workflow.ActionApprove)
	require.NotContains(t, employeeActions, workflow.ActionCancel)
	require.Contains(t, employeeActions, workflow.ActionEditLines)
}

func TestCreateRejectsUnknownRefs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, employeeID, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 999, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.ErrorIs(t, err, workflow.ErrNotFound)

	badCustomer := int64(999)
	_, err = svc.Create(ctx, employeeID, CreateRequest{
		CustomerID: &badCustomer,
		Lines:      issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = svc.Create(ctx, employeeID, CreateRequest{Lines: nil})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestUnknownActorRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 42, CreateRequest{
		Lines: issueLines(LineRequest{ProductID: 1, Quantity: 1, UnitPrice: price("1.00")}),
	})
	require.ErrorIs(t, err, workflow.ErrNotFound)
}
