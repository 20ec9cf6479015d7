package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/loginguard/internal/models"
)

const maxTxRetries = 16

// RedisAttemptStore shares guard state between instances. Updates use
// WATCH/MULTI so concurrent failures on one key serialize.
type RedisAttemptStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ AttemptStore = (*RedisAttemptStore)(nil)

// NewRedisAttemptStore constructs a Redis-backed attempt store. now supplies
// the time used to derive key TTLs from record expiry.
func NewRedisAttemptStore(client redis.UniversalClient, now func() time.Time) *RedisAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &RedisAttemptStore{client: client, prefix: "loginguard:attempt:", now: now}
}

func (s *RedisAttemptStore) Get(ctx context.Context, key string) (*models.AttemptRecord, error) {
	return s.load(ctx, s.client, s.prefix+key)
}

func (s *RedisAttemptStore) Update(ctx context.Context, key string, fn AttemptUpdateFunc) (*models.AttemptRecord, error) {
	k := s.prefix + key
	var result *models.AttemptRecord

	txf := func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, k)
		if err != nil {
			return err
		}
		next := fn(cur)

		var payload []byte
		if next != nil {
			if payload, err = json.Marshal(next); err != nil {
				return fmt.Errorf("marshal attempt record: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, payload, s.ttl(next))
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("update attempt record: %w", err)
	}
	return nil, fmt.Errorf("update attempt record: too much contention on %s", key)
}

func (s *RedisAttemptStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete attempt record: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) load(ctx context.Context, c redis.Cmdable, k string) (*models.AttemptRecord, error) {
	raw, err := c.Get(ctx, k).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load attempt record: %w", err)
	}
	var rec models.AttemptRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode attempt record: %w", err)
	}
	return &rec, nil
}

// ttl lets Redis drop a record once it can no longer affect a decision.
func (s *RedisAttemptStore) ttl(rec *models.AttemptRecord) time.Duration {
	ttl := rec.ExpiresAt().Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl + time.Second
}
