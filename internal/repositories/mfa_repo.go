package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// MFARepository persists second-factor enrollments.
type MFARepository interface {
	// Save stores rec, replacing any prior enrollment for the identity.
	Save(ctx context.Context, rec *models.MFARecord) error
	// Get returns models.ErrNotFound for unenrolled identities.
	Get(ctx context.Context, identity string) (*models.MFARecord, error)
	// MarkBackupCodeUsed flips the code with codeHash from unused to used and
	// reports whether this call performed the transition.
	MarkBackupCodeUsed(ctx context.Context, identity, codeHash string, at time.Time) (bool, error)
	MarkVerified(ctx context.Context, identity string, at time.Time) error
}

// MemoryMFARepository keeps enrollments in process memory.
type MemoryMFARepository struct {
	mu      sync.Mutex
	records map[string]*models.MFARecord
}

var _ MFARepository = (*MemoryMFARepository)(nil)

func NewMemoryMFARepository() *MemoryMFARepository {
	return &MemoryMFARepository{records: make(map[string]*models.MFARecord)}
}

func (r *MemoryMFARepository) Save(_ context.Context, rec *models.MFARecord) error {
	r.mu.Lock()
	r.records[rec.Identity] = rec.Clone()
	r.mu.Unlock()
	return nil
}

func (r *MemoryMFARepository) Get(_ context.Context, identity string) (*models.MFARecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[identity]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryMFARepository) MarkBackupCodeUsed(_ context.Context, identity, codeHash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[identity]
	if !ok {
		return false, nil
	}
	for i := range rec.BackupCodes {
		entry := &rec.BackupCodes[i]
		if entry.CodeHash == codeHash && entry.UsedAt == nil {
			usedAt := at
			entry.UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryMFARepository) MarkVerified(_ context.Context, identity string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[identity]
	if !ok {
		return models.ErrNotFound
	}
	if rec.VerifiedAt == nil {
		verifiedAt := at
		rec.VerifiedAt = &verifiedAt
	}
	return nil
}
