// Package dedup remembers which event ids were already processed so that
// at-least-once delivery does not repeat side effects.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	// Claim records id and reports true the first time it is seen within ttl.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a failed delivery can be processed again.
	Release(ctx context.Context, id string) error
}

const keyPrefix = "campusloans:event:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, keyPrefix+id, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}

type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.entries[id]; ok && now.Before(expires) {
		return false, nil
	}
	s.entries[id] = now.Add(s.ttl)

	if len(s.entries)%1024 == 0 {
		s.evictLocked(now)
	}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for id, expires := range s.entries {
		if !now.Before(expires) {
			delete(s.entries, id)
		}
	}
}
