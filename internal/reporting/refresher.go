package reporting

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-pos/internal/obs"
)

// ErrRefresherRunning is returned when Start is called twice.
var ErrRefresherRunning = errors.New("refresher already running")

// OverviewSource computes a dashboard overview.
type OverviewSource interface {
	Overview(ctx context.Context, now time.Time) (Overview, error)
}

// Refresher recomputes the overview on start and then once per Interval.
// At most one computation is in flight; ticks that arrive while one is
// running are skipped.
type Refresher struct {
	Source   OverviewSource
	Interval time.Duration
	Logger   *zerolog.Logger
	Now      func() time.Time

	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu      sync.Mutex
	latest  *Overview
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func (r *Refresher) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Refresher) interval() time.Duration {
	if r.Interval <= 0 {
		return time.Minute
	}
	return r.Interval
}

// Start runs an immediate refresh in the background and then one per
// interval until ctx is cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	if r.Source == nil {
		return errors.New("refresher source not configured")
	}
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return ErrRefresherRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval())
		defer ticker.Stop()
		r.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.wg.Add(1)
				go func() {
					defer r.wg.Done()
					r.Refresh(ctx)
				}()
			}
		}
	}()
	return nil
}

// Stop cancels the schedule and waits for the loop to exit. It is safe to
// call on a refresher that was never started.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.wg.Wait()
}

// Refresh computes one overview unless another computation is in flight. It
// reports whether it ran.
func (r *Refresher) Refresh(ctx context.Context) bool {
	if !r.inFlight.CompareAndSwap(false, true) {
		if obs.ReportRefreshTotal != nil {
			obs.ReportRefreshTotal.WithLabelValues("skipped").Inc()
		}
		return false
	}
	defer r.inFlight.Store(false)

	start := time.Now()
	ov, err := r.Source.Overview(ctx, r.now())
	if obs.ReportRefreshLatency != nil {
		obs.ReportRefreshLatency.Observe(obs.DurationMillis(time.Since(start)))
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if obs.ReportRefreshTotal != nil {
		obs.ReportRefreshTotal.WithLabelValues(result).Inc()
	}

	r.mu.Lock()
	r.lastErr = err
	if err == nil {
		r.latest = &ov
	}
	r.mu.Unlock()

	if r.Logger != nil {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.Logger.Error().Err(err).Msg("report_refresh_failed")
			}
		} else {
			r.Logger.Debug().Int("periods", len(ov.Periods)).Dur("took", time.Since(start)).Msg("report_refreshed")
		}
	}
	return true
}

// Latest returns the most recent successful overview.
func (r *Refresher) Latest() (Overview, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Overview{}, false
	}
	return *r.latest, true
}

// LastError returns the error of the most recent run, if any.
func (r *Refresher) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
