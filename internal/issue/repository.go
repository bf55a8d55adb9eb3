package issue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-wms/stockroom/internal/ledger"
	"github.com/stockroom-wms/stockroom/internal/numbering"
	"github.com/stockroom-wms/stockroom/internal/platform/db"
	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// Repository exposes read operations plus the transactional scope every
// transition runs in.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (*GoodsIssue, error)
	List(ctx context.Context, req ListRequest) ([]GoodsIssue, int, error)
}

// TxRepository exposes the operations available inside one transaction.
// GetForUpdate takes the document's row lock so transitions on the same
// document linearize; Ledger is bound to the same transaction so inventory
// effects commit or roll back together with the status change.
type TxRepository interface {
	numbering.Source
	GetForUpdate(ctx context.Context, id int64) (*GoodsIssue, error)
	Insert(ctx context.Context, doc GoodsIssue) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	DeleteLines(ctx context.Context, issueID int64) error
	Update(ctx context.Context, id int64, updates map[string]any) error
	UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error
	Ledger() ledger.Store
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const issueColumns = `id, number, customer_id, status, delivery_address, notes, approval_notes,
total_amount, created_by, approved_by, approved_at, prepared_by, prepared_at,
delivered_by, delivered_at, completed_by, completed_at, created_at, updated_at`

func scanIssue(row pgx.Row) (*GoodsIssue, error) {
	var doc GoodsIssue
	err := row.Scan(
		&doc.ID, &doc.Number, &doc.CustomerID, &doc.Status, &doc.DeliveryAddress,
		&doc.Notes, &doc.ApprovalNotes, &doc.TotalAmount, &doc.CreatedBy,
		&doc.ApprovedBy, &doc.ApprovedAt, &doc.PreparedBy, &doc.PreparedAt,
		&doc.DeliveredBy, &doc.DeliveredAt, &doc.CompletedBy, &doc.CompletedAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*GoodsIssue, error) {
	doc, err := scanIssue(r.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM goods_issues WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, issueID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, issue_id, product_id, quantity, unit_price
FROM goods_issue_lines WHERE issue_id = $1 ORDER BY id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]GoodsIssue, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if req.Status != nil {
		args = append(args, *req.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.Search != nil && *req.Search != "" {
		args = append(args, "%"+*req.Search+"%")
		where = append(where, fmt.Sprintf("number ILIKE $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_issues WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`SELECT %s FROM goods_issues WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		issueColumns, cond, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []GoodsIssue
	for rows.Next() {
		doc, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}
