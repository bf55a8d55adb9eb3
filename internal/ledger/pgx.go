package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// TxStore implements Store against a single open pgx transaction. The
// guarded UPDATE takes the product's row lock, so two concurrent decrements
// for the same product serialize instead of both passing a stale read.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore binds a Store to the given transaction.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

func (s *TxStore) TryDecrement(ctx context.Context, productID, qty int64) (bool, error) {
	if qty <= 0 {
		return false, errors.New("ledger: decrement quantity must be positive")
	}
	tag, err := s.tx.Exec(ctx, `UPDATE inventory_records
SET quantity = quantity - $2, updated_at = NOW()
WHERE product_id = $1 AND quantity >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TxStore) Increment(ctx context.Context, productID, qty int64) error {
	if qty <= 0 {
		return errors.New("ledger: increment quantity must be positive")
	}
	_, err := s.tx.Exec(ctx, `INSERT INTO inventory_records (product_id, quantity, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (product_id)
DO UPDATE SET quantity = inventory_records.quantity + EXCLUDED.quantity, updated_at = NOW()`, productID, qty)
	return err
}

func (s *TxStore) Quantity(ctx context.Context, productID int64) (int64, bool, error) {
	var qty int64
	err := s.tx.QueryRow(ctx, `SELECT quantity FROM inventory_records WHERE product_id = $1`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return qty, true, nil
}
