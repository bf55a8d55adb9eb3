package receipt

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
	GetByID(ctx context.Context, id int64) (*GoodsReceipt, error)
	List(ctx context.Context, req ListRequest) ([]GoodsReceipt, int, error)
}

// TxRepository exposes the operations available inside one transaction.
// GetByTokenForUpdate serves the unauthenticated supplier confirmation: it
// locates a pending receipt by its token under row lock, so a reused token
// cannot race its own consumption.
type TxRepository interface {
	numbering.Source
	GetForUpdate(ctx context.Context, id int64) (*GoodsReceipt, error)
	GetByTokenForUpdate(ctx context.Context, token string) (*GoodsReceipt, error)
	Insert(ctx context.Context, doc GoodsReceipt) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	DeleteLines(ctx context.Context, receiptID int64) error
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

const receiptColumns = `id, number, supplier_id, status, notes, approval_notes, total_amount,
confirmation_token, created_by, approved_by, approved_at, supplier_confirmed_at,
completed_by, completed_at, created_at, updated_at`

func scanReceipt(row pgx.Row) (*GoodsReceipt, error) {
	var doc GoodsReceipt
	err := row.Scan(
		&doc.ID, &doc.Number, &doc.SupplierID, &doc.Status, &doc.Notes,
		&doc.ApprovalNotes, &doc.TotalAmount, &doc.ConfirmationToken, &doc.CreatedBy,
		&doc.ApprovedBy, &doc.ApprovedAt, &doc.SupplierConfirmedAt,
		&doc.CompletedBy, &doc.CompletedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, receiptID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, receipt_id, product_id, quantity, unit_price
FROM goods_receipt_lines WHERE receipt_id = $1 ORDER BY id`, receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id int64) (*GoodsReceipt, error) {
	doc, err := scanReceipt(r.pool.QueryRow(ctx,
		`SELECT `+receiptColumns+` FROM goods_receipts WHERE id = $1`, id))
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

func (r *repository) List(ctx context.Context, req ListRequest) ([]GoodsReceipt, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receipts WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`SELECT %s FROM goods_receipts WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		receiptColumns, cond, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []GoodsReceipt
	for rows.Next() {
		doc, err := scanReceipt(rows)
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
