package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/salon-pos/internal/obs"
)

// Observed decorates a Repository with tracing, metrics and failure logs.
type Observed struct {
	Repo    Repository
	Backend string
	Logger  *zerolog.Logger

	appended metric.Int64Counter
}

// NewObserved wraps repo. backend labels metrics, e.g. "memory" or "postgres".
func NewObserved(repo Repository, backend string, logger *zerolog.Logger) *Observed {
	counter, _ := otel.Meter("ledger").Int64Counter("ledger.entries.appended",
		metric.WithDescription("Ledger entries committed."),
	)
	return &Observed{Repo: repo, Backend: backend, Logger: logger, appended: counter}
}

// Append implements Repository.
func (o *Observed) Append(ctx context.Context, entries []Entry) error {
	ctx, span := otel.Tracer("ledger").Start(ctx, "Ledger.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.backend", o.Backend),
		attribute.Int("ledger.entries", len(entries)),
	)
	start := time.Now()
	err := o.Repo.Append(ctx, entries)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		if o.Logger != nil {
			evt := o.Logger.Error().Err(err).Str("backend", o.Backend).Int("entries", len(entries))
			if len(entries) > 0 {
				evt = evt.Str("batch_id", entries[0].BatchID)
			}
			evt.Msg("ledger_append_failed")
		}
	} else if o.appended != nil {
		o.appended.Add(ctx, int64(len(entries)), metric.WithAttributes(attribute.String("backend", o.Backend)))
	}
	if obs.LedgerAppendTotal != nil {
		obs.LedgerAppendTotal.WithLabelValues(o.Backend, result).Inc()
	}
	if obs.LedgerAppendLatency != nil {
		obs.LedgerAppendLatency.WithLabelValues(o.Backend).Observe(obs.DurationMillis(time.Since(start)))
	}
	return err
}

// Query implements Repository.
func (o *Observed) Query(ctx context.Context, start, end time.Time) ([]Entry, error) {
	ctx, span := otel.Tracer("ledger").Start(ctx, "Ledger.Query")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.backend", o.Backend))
	entries, err := o.Repo.Query(ctx, start, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("ledger.entries", len(entries)))
	return entries, nil
}
