package repositories

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdleSessionStore records the last authenticated activity per identity.
type IdleSessionStore interface {
	Touch(ctx context.Context, identity string, at time.Time) error
	LastActivity(ctx context.Context, identity string) (time.Time, bool, error)
}

// MemoryIdleSessionStore is the single-process IdleSessionStore.
type MemoryIdleSessionStore struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

var _ IdleSessionStore = (*MemoryIdleSessionStore)(nil)

func NewMemoryIdleSessionStore() *MemoryIdleSessionStore {
	return &MemoryIdleSessionStore{last: make(map[string]time.Time)}
}

func (s *MemoryIdleSessionStore) Touch(_ context.Context, identity string, at time.Time) error {
	s.mu.Lock()
	s.last[identity] = at
	s.mu.Unlock()
	return nil
}

func (s *MemoryIdleSessionStore) LastActivity(_ context.Context, identity string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.last[identity]
	return at, ok, nil
}

// PurgeBefore forgets activity older than cutoff.
func (s *MemoryIdleSessionStore) PurgeBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for identity, at := range s.last {
		if at.Before(cutoff) {
			delete(s.last, identity)
			n++
		}
	}
	return n
}

// RedisIdleSessionStore keeps activity timestamps in Redis. Keys expire
// after retention, which should be at least the idle timeout.
type RedisIdleSessionStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ IdleSessionStore = (*RedisIdleSessionStore)(nil)

func NewRedisIdleSessionStore(client redis.UniversalClient, retention time.Duration) *RedisIdleSessionStore {
	return &RedisIdleSessionStore{client: client, prefix: "loginguard:idle:", retention: retention}
}

func (s *RedisIdleSessionStore) Touch(ctx context.Context, identity string, at time.Time) error {
	value := strconv.FormatInt(at.UnixNano(), 10)
	if err := s.client.Set(ctx, s.prefix+identity, value, s.retention).Err(); err != nil {
		return fmt.Errorf("persist activity: %w", err)
	}
	return nil
}

func (s *RedisIdleSessionStore) LastActivity(ctx context.Context, identity string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+identity).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("load activity: %w", err)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode activity: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}
