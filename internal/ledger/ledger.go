// Package ledger holds the per-product on-hand-quantity store shared by both
// document engines. It is the only state mutated by more than one workflow,
// and every mutation goes through the two primitives below.
package ledger

import "context"

// Store is the inventory mutation contract. Implementations must be atomic
// per product row under concurrent callers; the transactional implementation
// binds every call to the surrounding document transaction so a multi-line
// transition applies all-or-nothing.
type Store interface {
	// TryDecrement subtracts qty from the product's quantity. It returns
	// false without mutating anything when no record exists or the current
	// quantity is smaller than qty.
	TryDecrement(ctx context.Context, productID, qty int64) (bool, error)
	// Increment adds qty to the product's quantity, creating the record at
	// qty when absent.
	Increment(ctx context.Context, productID, qty int64) error
	// Quantity reports the current on-hand quantity. The second return is
	// false when no record exists for the product.
	Quantity(ctx context.Context, productID int64) (int64, bool, error)
}
