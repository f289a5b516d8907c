package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/salon-pos/internal/resilience"
)

// ErrUnavailable is returned without touching the backend while its breaker
// is open.
var ErrUnavailable = fmt.Errorf("ledger: backend unavailable: %w", resilience.ErrOpenCircuit)

// Guarded fails fast when the backend keeps failing so checkouts do not
// queue behind a dead database.
type Guarded struct {
	Repo    Repository
	Breaker *resilience.Breaker
}

// Append implements Repository.
func (g Guarded) Append(ctx context.Context, entries []Entry) error {
	if !g.Breaker.Allow(ctx) {
		return ErrUnavailable
	}
	err := g.Repo.Append(ctx, entries)
	g.report(ctx, err)
	return err
}

// Query implements Repository.
func (g Guarded) Query(ctx context.Context, start, end time.Time) ([]Entry, error) {
	if !g.Breaker.Allow(ctx) {
		return nil, ErrUnavailable
	}
	entries, err := g.Repo.Query(ctx, start, end)
	g.report(ctx, err)
	return entries, err
}

// report counts only backend faults. Rejected input proves the backend is
// answering, and cancellation says nothing about it.
func (g Guarded) report(ctx context.Context, err error) {
	switch {
	case err == nil, errors.Is(err, ErrInvalidEntry), errors.Is(err, ErrDuplicateEntry):
		g.Breaker.Report(ctx, true)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		g.Breaker.Release()
	default:
		g.Breaker.Report(ctx, false)
	}
}
