package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// AttemptUpdateFunc receives the current record (nil when absent) and
// returns the record to store, or nil to delete the key.
type AttemptUpdateFunc func(cur *models.AttemptRecord) *models.AttemptRecord

// AttemptStore persists guard state keyed by identity/IP. Update must run
// its read-modify-write atomically with respect to other calls on the same key.
type AttemptStore interface {
	Get(ctx context.Context, key string) (*models.AttemptRecord, error)
	Update(ctx context.Context, key string, fn AttemptUpdateFunc) (*models.AttemptRecord, error)
	Delete(ctx context.Context, key string) error
}

// MemoryAttemptStore keeps records in a map behind a single mutex.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]*models.AttemptRecord
}

var _ AttemptStore = (*MemoryAttemptStore)(nil)

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{records: make(map[string]*models.AttemptRecord)}
}

func (s *MemoryAttemptStore) Get(_ context.Context, key string) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key].Clone(), nil
}

func (s *MemoryAttemptStore) Update(_ context.Context, key string, fn AttemptUpdateFunc) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.records[key].Clone())
	if next == nil {
		delete(s.records, key)
		return nil, nil
	}
	s.records[key] = next.Clone()
	return next, nil
}

func (s *MemoryAttemptStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Purge drops every record that is stale at now and reports how many went.
// Reads already treat such records as absent.
func (s *MemoryAttemptStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.records {
		if rec.Stale(now) {
			delete(s.records, key)
			n++
		}
	}
	return n
}

// Len reports the number of tracked keys.
func (s *MemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
