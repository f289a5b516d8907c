package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/salon-pos/internal/cache"
)

// Record is a stored in-progress order.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Order     Order     `json:"order"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists in-progress orders between requests.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps carts in process memory and expires them after TTL.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	carts map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl, carts: make(map[string]Record)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns the cart or ErrNotFound when missing or expired.
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.carts[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.TTL > 0 && s.now().Sub(rec.UpdatedAt) > s.TTL {
		delete(s.carts, id)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Put stores rec, replacing any prior version.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts == nil {
		s.carts = make(map[string]Record)
	}
	s.carts[rec.ID] = rec
	return nil
}

// Delete removes the cart if present.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	return nil
}

// RedisStore keeps carts as JSON documents that expire after the cache TTL.
type RedisStore struct {
	cache *cache.JSON
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: cache.NewJSON(client, "cart", ttl)}
}

// Get returns the cart or ErrNotFound when the key is missing or expired.
func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	ok, err := s.cache.Get(ctx, s.cache.Key(id), &rec)
	if err != nil {
		return Record{}, fmt.Errorf("load cart: %w", err)
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Put stores rec and refreshes its expiry.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if err := s.cache.Set(ctx, s.cache.Key(rec.ID), rec); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete removes the cart.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, s.cache.Key(id))
}
