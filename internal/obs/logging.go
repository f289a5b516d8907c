package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/salon-pos/internal/common"
)

// NewLogger builds the process logger. format "console" or "text" selects
// the human-readable writer; anything else logs JSON lines to stdout.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "salon-pos").Logger()
}

// RequestLogger writes one line per request. Health and metrics routes log at
// debug so they do not drown the till traffic; client errors log at warn and
// server errors at error.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements chi middleware for request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		r = r.WithContext(common.WithOperatorSlot(r.Context()))
		next.ServeHTTP(recorder, r)

		route := routeOf(r)
		evt := l.event(route, recorder.Status()).
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", recorder.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", recorder.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("client_ip", common.ClientIP(r))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		if op, ok := common.OperatorFrom(r.Context()); ok {
			evt = evt.Str("operator_id", op.ID)
		}
		if rc := chi.RouteContext(r.Context()); rc != nil && strings.HasPrefix(route, "/api/v1/carts/") {
			if id := rc.URLParam("id"); id != "" {
				evt = evt.Str("cart_id", id)
			}
		}
		evt.Msg("http_request")
	})
}

func (l RequestLogger) event(route string, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return l.Logger.Error()
	case status >= http.StatusBadRequest:
		return l.Logger.Warn()
	case strings.HasPrefix(route, "/health/"), route == "/metrics":
		return l.Logger.Debug()
	default:
		return l.Logger.Info()
	}
}
