package reporting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/salon-pos/internal/cache"
	"github.com/noah-isme/salon-pos/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// NetSales sums gross minus discount over entries.
func NetSales(entries []ledger.Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Net())
	}
	return total
}

// PercentChange returns (current-prior)/prior*100, or 100 when prior is zero.
func PercentChange(current, prior decimal.Decimal) decimal.Decimal {
	if prior.IsZero() {
		return hundred
	}
	return current.Sub(prior).Div(prior).Mul(hundred)
}

// PeriodComparison pairs a period's net sales with the period before it.
type PeriodComparison struct {
	Period       Period          `json:"period"`
	Label        string          `json:"label"`
	Current      decimal.Decimal `json:"current"`
	Prior        decimal.Decimal `json:"prior"`
	Change       decimal.Decimal `json:"change"`
	CurrentRange Range           `json:"currentRange"`
	PriorRange   Range           `json:"priorRange"`
	EntryCount   int             `json:"entryCount"`
}

// Overview is the dashboard summary at one instant.
type Overview struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Periods     []PeriodComparison `json:"periods"`
}

// Drill is the raw ledger content behind one dashboard figure.
type Drill struct {
	Label    string          `json:"label"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Entries  []ledger.Entry  `json:"entries"`
	Batches  int             `json:"batches"`
	NetSales decimal.Decimal `json:"netSales"`
}

type cachedTotal struct {
	Net   string `json:"net"`
	Count int    `json:"count"`
}

// DefaultSettle is how long a period must have been over before its total
// is cached.
const DefaultSettle = 5 * time.Minute

// Aggregator computes dashboard figures from the ledger. Totals of periods
// that ended at least Settle before now are cached. Payments stamped just
// before a boundary may still be appending, and other instances may run
// slightly behind, so a period is not final the moment it ends.
type Aggregator struct {
	Ledger   ledger.Repository
	Cache    *cache.JSON
	Location *time.Location
	Logger   *zerolog.Logger
	Settle   time.Duration
}

func (a *Aggregator) settle() time.Duration {
	if a.Settle > 0 {
		return a.Settle
	}
	return DefaultSettle
}

func (a *Aggregator) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.Local
}

// Overview computes the four period comparisons as of now.
func (a *Aggregator) Overview(ctx context.Context, now time.Time) (Overview, error) {
	if a == nil || a.Ledger == nil {
		return Overview{}, errors.New("reporting aggregator not configured")
	}
	ctx, span := otel.Tracer("reporting").Start(ctx, "Reporting.Overview")
	defer span.End()

	now = now.In(a.location())
	out := Overview{GeneratedAt: now, Periods: make([]PeriodComparison, 0, len(Periods))}
	for _, p := range Periods {
		cur, err := DateRange(p, now)
		if err != nil {
			return Overview{}, err
		}
		prior, err := DateRange(p, Previous(p, now))
		if err != nil {
			return Overview{}, err
		}
		curNet, count, err := a.total(ctx, cur, now)
		if err != nil {
			return Overview{}, fmt.Errorf("%s current: %w", p, err)
		}
		priorNet, _, err := a.total(ctx, prior, now)
		if err != nil {
			return Overview{}, fmt.Errorf("%s prior: %w", p, err)
		}
		out.Periods = append(out.Periods, PeriodComparison{
			Period:       p,
			Label:        Label(p),
			Current:      curNet,
			Prior:        priorNet,
			Change:       PercentChange(curNet, priorNet).Round(2),
			CurrentRange: cur,
			PriorRange:   prior,
			EntryCount:   count,
		})
	}
	span.SetAttributes(attribute.Int("reporting.periods", len(out.Periods)))
	return out, nil
}

// DrillDown returns the entries in [start, end] with their net total.
func (a *Aggregator) DrillDown(ctx context.Context, start, end time.Time, label string) (Drill, error) {
	if a == nil || a.Ledger == nil {
		return Drill{}, errors.New("reporting aggregator not configured")
	}
	if end.Before(start) {
		return Drill{}, fmt.Errorf("end before start: %w", ErrInvalidRange)
	}
	ctx, span := otel.Tracer("reporting").Start(ctx, "Reporting.DrillDown")
	defer span.End()
	entries, err := a.Ledger.Query(ctx, start, end)
	if err != nil {
		return Drill{}, err
	}
	span.SetAttributes(attribute.Int("reporting.entries", len(entries)))
	return Drill{
		Label:    label,
		Start:    start,
		End:      end,
		Entries:  entries,
		Batches:  len(ledger.Batches(entries)),
		NetSales: NetSales(entries),
	}, nil
}

func (a *Aggregator) total(ctx context.Context, r Range, now time.Time) (decimal.Decimal, int, error) {
	closed := r.End.Add(a.settle()).Before(now)
	key := ""
	if closed && a.Cache.Enabled() {
		key = a.Cache.Key("net", strconv.FormatInt(r.Start.UnixMilli(), 10), strconv.FormatInt(r.End.UnixMilli(), 10))
		var hit cachedTotal
		ok, err := a.Cache.Get(ctx, key, &hit)
		if err != nil && a.Logger != nil {
			a.Logger.Warn().Err(err).Str("key", key).Msg("report_cache_read_failed")
		}
		if ok {
			if net, err := decimal.NewFromString(hit.Net); err == nil {
				return net, hit.Count, nil
			}
		}
	}
	entries, err := a.Ledger.Query(ctx, r.Start, r.End)
	if err != nil {
		return decimal.Zero, 0, err
	}
	net := NetSales(entries)
	if key != "" {
		if err := a.Cache.Set(ctx, key, cachedTotal{Net: net.String(), Count: len(entries)}); err != nil && a.Logger != nil {
			a.Logger.Warn().Err(err).Str("key", key).Msg("report_cache_write_failed")
		}
	}
	return net, len(entries), nil
}
