package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is a map-backed Store used by service tests in the document engine
// packages. A mutex stands in for the row locks of the SQL implementation.
type Memory struct {
	mu      sync.Mutex
	records map[int64]int64
	updated map[int64]time.Time
}

// NewMemory builds an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[int64]int64),
		updated: make(map[int64]time.Time),
	}
}

// Seed sets a product's quantity directly, bypassing the primitives.
func (m *Memory) Seed(productID, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[productID] = qty
}

// Snapshot copies the current quantities. Paired with Restore it lets the
// in-memory repositories emulate transaction rollback.
func (m *Memory) Snapshot() map[int64]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[int64]int64, len(m.records))
	for id, qty := range m.records {
		snap[id] = qty
	}
	return snap
}

// Restore resets the quantities to a previously taken snapshot.
func (m *Memory) Restore(snap map[int64]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[int64]int64, len(snap))
	for id, qty := range snap {
		m.records[id] = qty
	}
}

func (m *Memory) TryDecrement(ctx context.Context, productID, qty int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[productID]
	if !ok || current < qty {
		return false, nil
	}
	m.records[productID] = current - qty
	m.updated[productID] = time.Now()
	return true, nil
}

func (m *Memory) Increment(ctx context.Context, productID, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[productID] += qty
	m.updated[productID] = time.Now()
	return nil
}

func (m *Memory) Quantity(ctx context.Context, productID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.records[productID]
	return qty, ok, nil
}
