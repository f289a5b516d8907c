package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskToast is the asynq task type carrying operator notifications.
const TaskToast = "notify:toast"

// NewToastTask encodes msg as an asynq task.
func NewToastTask(msg Message) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskToast, payload, asynq.MaxRetry(3), asynq.Timeout(10*time.Second)), nil
}

// Enqueuer is the part of *asynq.Client used by QueueSink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink publishes notifications to the background worker.
type QueueSink struct {
	Client Enqueuer
	Queue  string
	Logger *zerolog.Logger
	Now    func() time.Time
}

// NotifySuccess implements Sink.
func (s QueueSink) NotifySuccess(ctx context.Context, msg string) { s.publish(ctx, LevelSuccess, msg) }

// NotifyError implements Sink.
func (s QueueSink) NotifyError(ctx context.Context, msg string) { s.publish(ctx, LevelError, msg) }

func (s QueueSink) publish(ctx context.Context, level Level, text string) {
	if s.Client == nil {
		return
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	task, err := NewToastTask(Message{Level: level, Text: text, At: now})
	if err == nil {
		var opts []asynq.Option
		if s.Queue != "" {
			opts = append(opts, asynq.Queue(s.Queue))
		}
		_, err = s.Client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error().Err(err).Str("level_hint", string(level)).Msg("notification_enqueue_failed")
		}
		return
	}
	count(level, "queue")
}

// ToastHandler consumes notify:toast tasks in the worker.
type ToastHandler struct {
	Logger  *zerolog.Logger
	Deliver Sink
}

// ProcessTask implements asynq.Handler.
func (h ToastHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return fmt.Errorf("decode toast: %v: %w", err, asynq.SkipRetry)
	}
	if h.Logger != nil {
		h.Logger.Info().Str("level_hint", string(msg.Level)).Time("at", msg.At).Str("message", msg.Text).Msg("toast_delivered")
	}
	if h.Deliver != nil {
		switch msg.Level {
		case LevelError:
			h.Deliver.NotifyError(ctx, msg.Text)
		default:
			h.Deliver.NotifySuccess(ctx, msg.Text)
		}
	}
	return nil
}
