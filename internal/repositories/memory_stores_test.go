package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAttemptStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore()

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)

	stored, err := s.Update(ctx, "k", func(cur *models.AttemptRecord) *models.AttemptRecord {
		assert.Nil(t, cur)
		return &models.AttemptRecord{FailureCount: 1, Window: time.Minute}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailureCount)

	stored, err = s.Update(ctx, "k", func(cur *models.AttemptRecord) *models.AttemptRecord {
		require.NotNil(t, cur)
		cur.FailureCount++
		return cur
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored.FailureCount)

	stored, err = s.Update(ctx, "k", func(*models.AttemptRecord) *models.AttemptRecord { return nil })
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryAttemptStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore()
	now := time.Now()

	_, err := s.Update(ctx, "k", func(*models.AttemptRecord) *models.AttemptRecord {
		return &models.AttemptRecord{FailureCount: 1, FirstFailureAt: &now}
	})
	require.NoError(t, err)

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	rec.FailureCount = 99
	*rec.FirstFailureAt = now.Add(time.Hour)

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, again.FailureCount)
	assert.True(t, again.FirstFailureAt.Equal(now))
}

func TestMemoryAttemptStore_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAttemptStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, "k", func(cur *models.AttemptRecord) *models.AttemptRecord {
				if cur == nil {
					cur = &models.AttemptRecord{}
				}
				cur.FailureCount++
				return cur
			})
		}()
	}
	wg.Wait()

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.FailureCount)
}

func TestMemoryIdleSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdleSessionStore()

	_, ok, err := s.LastActivity(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Touch(ctx, "a@example.com", at))

	got, ok, err := s.LastActivity(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}

func TestMemoryMFARepository_BackupCodeUsedOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMFARepository()
	now := time.Now()

	require.NoError(t, r.Save(ctx, &models.MFARecord{
		Identity: "admin@example.com",
		Secret:   "SECRET",
		BackupCodes: []models.BackupCodeEntry{
			{CodeHash: "h1", CreatedAt: now},
			{CodeHash: "h2", CreatedAt: now},
		},
	}))

	ok, err := r.MarkBackupCodeUsed(ctx, "admin@example.com", "h1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.MarkBackupCodeUsed(ctx, "admin@example.com", "h1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.MarkBackupCodeUsed(ctx, "nobody@example.com", "h2", now)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := r.Get(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RemainingBackupCodes())
}

func TestMemoryMFARepository_ConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMFARepository()
	require.NoError(t, r.Save(ctx, &models.MFARecord{
		Identity:    "admin@example.com",
		BackupCodes: []models.BackupCodeEntry{{CodeHash: "h1"}},
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := r.MarkBackupCodeUsed(ctx, "admin@example.com", "h1", time.Now())
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryMFARepository_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMFARepository()

	require.NoError(t, r.Save(ctx, &models.MFARecord{Identity: "a", Secret: "OLD", BackupCodes: []models.BackupCodeEntry{{CodeHash: "old"}}}))
	require.NoError(t, r.Save(ctx, &models.MFARecord{Identity: "a", Secret: "NEW", BackupCodes: []models.BackupCodeEntry{{CodeHash: "new"}}}))

	ok, err := r.MarkBackupCodeUsed(ctx, "a", "old", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "NEW", rec.Secret)
}

func TestMemoryMFARepository_NotFound(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMFARepository()

	_, err := r.Get(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.ErrorIs(t, r.MarkVerified(ctx, "missing", time.Now()), models.ErrNotFound)
}

func TestMemoryMFARepository_MarkVerifiedKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryMFARepository()
	require.NoError(t, r.Save(ctx, &models.MFARecord{Identity: "a"}))

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.MarkVerified(ctx, "a", first))
	require.NoError(t, r.MarkVerified(ctx, "a", first.Add(time.Hour)))

	rec, err := r.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, rec.IsVerified())
	assert.Equal(t, first, *rec.VerifiedAt)
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryUserRepository()

	u := &models.User{Email: "  Admin@Example.com ", PasswordHash: "h", Role: models.RoleAdmin}
	require.NoError(t, r.Create(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "admin@example.com", u.Email)

	got, err := r.GetByIdentity(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)

	assert.ErrorIs(t, r.Create(ctx, &models.User{Email: "admin@example.com"}), models.ErrConflict)

	_, err = r.GetByIdentity(ctx, "other@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
