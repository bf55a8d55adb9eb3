// Package numbering generates the date-scoped sequential document numbers
// used by both engines: prefix + yyyyMMdd + three-digit sequence, e.g.
// GI20260831007.
package numbering

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"
)

// Source supplies the pieces the generator needs from the surrounding
// transaction. LockScope must serialize concurrent generations for the same
// scope (the SQL implementation takes a Postgres advisory transaction lock),
// otherwise two creations racing on the same day could read the same latest
// number.
type Source interface {
	LockScope(ctx context.Context, scope string) error
	// LatestNumber returns the highest existing document number starting
	// with the given scope prefix, or false when none exist.
	LatestNumber(ctx context.Context, scope string) (string, bool, error)
}

// Generator produces numbers for one document type.
type Generator struct {
	Prefix string
	Now    func() time.Time
}

// NewGenerator builds a Generator with the wall clock.
func NewGenerator(prefix string) Generator {
	return Generator{Prefix: prefix, Now: time.Now}
}

// Next returns the next number for today: the latest sequence for the day
// plus one, zero-padded to three digits, starting at 1 when the day has no
// documents yet.
func (g Generator) Next(ctx context.Context, src Source) (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	scope := g.Prefix + now().Format("20060102")
	if err := src.LockScope(ctx, scope); err != nil {
		return "", fmt.Errorf("numbering: lock scope %s: %w", scope, err)
	}
	latest, ok, err := src.LatestNumber(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("numbering: latest for %s: %w", scope, err)
	}
	seq := 1
	if ok {
		if n, err := strconv.Atoi(latest[len(scope):]); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", scope, seq), nil
}

// ScopeKey hashes a scope into the signed 64-bit key space of Postgres
// advisory locks.
func ScopeKey(scope string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(scope))
	return int64(h.Sum64())
}
