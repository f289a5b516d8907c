package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the trail in a capped Redis stream.
type RedisStore struct {
	R      *redis.Client
	Stream string
	MaxLen int64
}

func (s RedisStore) stream() string {
	if s.Stream == "" {
		return "audit:till"
	}
	return s.Stream
}

// Insert implements Store.
func (s RedisStore) Insert(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	args := &redis.XAddArgs{Stream: s.stream(), Values: map[string]any{"entry": payload}}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	if err := s.R.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s RedisStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	msgs, err := s.R.XRevRangeN(ctx, s.stream(), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: read: %w", err)
	}
	out := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		e.ID = msg.ID
		out = append(out, e)
	}
	return out, nil
}

// MemoryStore keeps the newest Max entries in process.
type MemoryStore struct {
	Max int

	mu      sync.Mutex
	entries []Entry
	seq     int
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.ID = fmt.Sprintf("%d", s.seq)
	s.entries = append(s.entries, e)
	if s.Max > 0 && len(s.entries) > s.Max {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-s.Max:]...)
	}
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
