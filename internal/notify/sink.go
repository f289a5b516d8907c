package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-pos/internal/obs"
)

// Level classifies a notification for the operator.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is one operator-facing notification.
type Message struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Sink receives operator notifications. Delivery is fire-and-forget: sinks
// never report failures back to the caller.
type Sink interface {
	NotifySuccess(ctx context.Context, msg string)
	NotifyError(ctx context.Context, msg string)
}

func count(level Level, sink string) {
	if obs.NotificationsTotal != nil {
		obs.NotificationsTotal.WithLabelValues(string(level), sink).Inc()
	}
}

// LogSink writes notifications as structured log lines.
type LogSink struct {
	Logger *zerolog.Logger
}

// NotifySuccess implements Sink.
func (s LogSink) NotifySuccess(_ context.Context, msg string) {
	count(LevelSuccess, "log")
	if s.Logger != nil {
		s.Logger.Info().Str("level_hint", string(LevelSuccess)).Str("message", msg).Msg("notification")
	}
}

// NotifyError implements Sink.
func (s LogSink) NotifyError(_ context.Context, msg string) {
	count(LevelError, "log")
	if s.Logger != nil {
		s.Logger.Warn().Str("level_hint", string(LevelError)).Str("message", msg).Msg("notification")
	}
}

// Fanout forwards every notification to each sink in order.
type Fanout []Sink

// NotifySuccess implements Sink.
func (f Fanout) NotifySuccess(ctx context.Context, msg string) {
	for _, s := range f {
		if s != nil {
			s.NotifySuccess(ctx, msg)
		}
	}
}

// NotifyError implements Sink.
func (f Fanout) NotifyError(ctx context.Context, msg string) {
	for _, s := range f {
		if s != nil {
			s.NotifyError(ctx, msg)
		}
	}
}

// Recorder keeps notifications in memory. HTTP handlers use it to echo the
// message of the current request; tests use it to assert on output.
type Recorder struct {
	Now func() time.Time

	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) record(level Level, msg string) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	r.mu.Lock()
	r.messages = append(r.messages, Message{Level: level, Text: msg, At: now})
	r.mu.Unlock()
}

// NotifySuccess implements Sink.
func (r *Recorder) NotifySuccess(_ context.Context, msg string) { r.record(LevelSuccess, msg) }

// NotifyError implements Sink.
func (r *Recorder) NotifyError(_ context.Context, msg string) { r.record(LevelError, msg) }

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent message, if any.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
