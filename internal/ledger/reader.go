package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// Record is one product's on-hand quantity.
type Record struct {
	ProductID int64     `json:"product_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reader serves read-only inventory views outside any transaction.
type Reader struct {
	db *pgxpool.Pool
}

// NewReader returns a Reader over the given pool.
func NewReader(db *pgxpool.Pool) *Reader {
	return &Reader{db: db}
}

// List returns all inventory records joined with their product identity.
func (r *Reader) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ir.product_id, p.sku, p.name, ir.quantity, ir.updated_at
		FROM inventory_records ir
		JOIN products p ON p.id = ir.product_id
		ORDER BY p.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ProductID, &rec.SKU, &rec.Name, &rec.Quantity, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one product's record. A product that has never been received
// has no record.
func (r *Reader) Get(ctx context.Context, productID int64) (Record, error) {
	var rec Record
	err := r.db.QueryRow(ctx, `
		SELECT ir.product_id, p.sku, p.name, ir.quantity, ir.updated_at
		FROM inventory_records ir
		JOIN products p ON p.id = ir.product_id
		WHERE ir.product_id = $1`, productID).
		Scan(&rec.ProductID, &rec.SKU, &rec.Name, &rec.Quantity, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, workflow.ErrNotFound
	}
	return rec, err
}
