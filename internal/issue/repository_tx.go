package issue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stockroom-wms/stockroom/internal/ledger"
	"github.com/stockroom-wms/stockroom/internal/numbering"
)

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (*GoodsIssue, error) {
	doc, err := scanIssue(t.tx.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM goods_issues WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

func (t *txRepository) Insert(ctx context.Context, doc GoodsIssue) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_issues (
	number, customer_id, status, delivery_address, notes, approval_notes,
	total_amount, created_by, approved_by, approved_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		doc.Number, doc.CustomerID, doc.Status, doc.DeliveryAddress, doc.Notes,
		doc.ApprovalNotes, doc.TotalAmount, doc.CreatedBy, doc.ApprovedBy, doc.ApprovedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_issue_lines (issue_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4)`, line.IssueID, line.ProductID, line.Quantity, line.UnitPrice)
	return err
}

func (t *txRepository) DeleteLines(ctx context.Context, issueID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM goods_issue_lines WHERE issue_id = $1`, issueID)
	return err
}

// Update applies field updates and bumps updated_at.
func (t *txRepository) Update(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var setClauses []string
	var args []any
	for field, value := range updates {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	args = append(args, time.Now())
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE goods_issues SET %s WHERE id = $%d`,
		strings.Join(setClauses, ", "), len(args))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error {
	if updates == nil {
		updates = make(map[string]any)
	}
	updates["status"] = status
	return t.Update(ctx, id, updates)
}

func (t *txRepository) Ledger() ledger.Store {
	return ledger.NewTxStore(t.tx)
}

// LockScope serializes same-day number generation with an advisory
// transaction lock.
func (t *txRepository) LockScope(ctx context.Context, scope string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, numbering.ScopeKey(scope))
	return err
}

func (t *txRepository) LatestNumber(ctx context.Context, scope string) (string, bool, error) {
	var number string
	err := t.tx.QueryRow(ctx, `SELECT number FROM goods_issues WHERE number LIKE $1 || '%'
ORDER BY number DESC LIMIT 1`, scope).Scan(&number)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return number, true, nil
}
