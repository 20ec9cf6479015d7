package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
)

var testPolicy = LockPolicy{FailLimit: 3, Lockout: 30 * time.Second}

func newTestLedger() (*AttemptLedger, *repositories.MemoryAttemptStore, *clock.Fake) {
	store := repositories.NewMemoryAttemptStore()
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewAttemptLedger(store, clk, testLogger()), store, clk
}

func TestAttemptKey(t *testing.T) {
	tests := []struct {
		identity string
		ip       string
		want     string
	}{
		{"user@example.com", "10.0.0.1", "login:user@example.com:10.0.0.1"},
		{"  User@Example.COM ", "10.0.0.1", "login:user@example.com:10.0.0.1"},
		{"user@example.com", "", "login:user@example.com:0.0.0.0"},
		{"user@example.com", "2001:db8::1", "login:user@example.com:2001:db8::1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AttemptKey(tt.identity, tt.ip))
	}
}

func TestAttemptLedger_LocksAtLimit(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")

	for i := 1; i < testPolicy.FailLimit; i++ {
		out, err := ledger.RegisterFailure(ctx, key, testPolicy)
		require.NoError(t, err)
		assert.Equal(t, i, out.FailureCount)
		assert.False(t, out.Locked)
	}

	out, err := ledger.RegisterFailure(ctx, key, testPolicy)
	require.NoError(t, err)
	assert.True(t, out.Locked)
	assert.Equal(t, 3, out.FailureCount)
	assert.Equal(t, 30, out.RetryAfterSeconds)

	locked, retry, err := ledger.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 30, retry)
}

func TestAttemptLedger_FailureWhileLockedDoesNotExtend(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")

	for i := 0; i < 3; i++ {
		_, err := ledger.RegisterFailure(ctx, key, testPolicy)
		require.NoError(t, err)
	}

	clk.Advance(10 * time.Second)
	out, err := ledger.RegisterFailure(ctx, key, testPolicy)
	require.NoError(t, err)
	assert.True(t, out.Locked)
	assert.Equal(t, 20, out.RetryAfterSeconds)

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.FailureCount)
}

func TestAttemptLedger_RetryAfterRoundsUp(t *testing.T) {
	ledger, _, clk := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")

	for i := 0; i < 3; i++ {
		_, err := ledger.RegisterFailure(ctx, key, testPolicy)
		require.NoError(t, err)
	}

	clk.Advance(29*time.Second + 500*time.Millisecond)
	locked, retry, err := ledger.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 1, retry)
}

func TestAttemptLedger_LockExpiryClearsRecord(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")

	for i := 0; i < 3; i++ {
		_, err := ledger.RegisterFailure(ctx, key, testPolicy)
		require.NoError(t, err)
	}

	clk.Advance(30 * time.Second)
	locked, _, err := ledger.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, 0, store.Len())

	out, err := ledger.RegisterFailure(ctx, key, testPolicy)
	require.NoError(t, err)
	assert.Equal(t, 1, out.FailureCount)
}

func TestAttemptLedger_RollingWindow(t *testing.T) {
	ledger, _, clk := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")
	policy := LockPolicy{FailLimit: 3, Lockout: 30 * time.Second, Window: time.Minute}

	_, err := ledger.RegisterFailure(ctx, key, policy)
	require.NoError(t, err)

	clk.Advance(45 * time.Second)
	count, err := ledger.FailureCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "still inside the one minute window")

	clk.Advance(20 * time.Second)
	count, err = ledger.FailureCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	out, err := ledger.RegisterFailure(ctx, key, policy)
	require.NoError(t, err)
	assert.Equal(t, 1, out.FailureCount)
}

func TestAttemptLedger_RegisterSuccess(t *testing.T) {
	ledger, store, _ := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")

	_, err := ledger.RegisterFailure(ctx, key, testPolicy)
	require.NoError(t, err)

	require.NoError(t, ledger.RegisterSuccess(ctx, key))
	assert.Equal(t, 0, store.Len())

	// idempotent
	require.NoError(t, ledger.RegisterSuccess(ctx, key))
}

func TestAttemptLedger_FailureCountDoesNotMutate(t *testing.T) {
	ledger, store, clk := newTestLedger()
	ctx := context.Background()
	key := AttemptKey("a@b.c", "1.2.3.4")

	_, err := ledger.RegisterFailure(ctx, key, testPolicy)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	count, err := ledger.FailureCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, store.Len(), "stale record is left for IsLocked to collect")
}

func TestAttemptLedger_StoreErrors(t *testing.T) {
	store := &MockAttemptStore{
		GetFunc: func(ctx context.Context, key string) (*models.AttemptRecord, error) {
			return nil, errStoreDown
		},
		UpdateFunc: func(ctx context.Context, key string, fn repositories.AttemptUpdateFunc) (*models.AttemptRecord, error) {
			return nil, errStoreDown
		},
		DeleteFunc: func(ctx context.Context, key string) error {
			return errStoreDown
		},
	}
	ledger := NewAttemptLedger(store, clock.NewFake(time.Now()), testLogger())
	ctx := context.Background()

	_, _, err := ledger.IsLocked(ctx, "k")
	assert.ErrorIs(t, err, errStoreDown)

	_, err = ledger.RegisterFailure(ctx, "k", testPolicy)
	assert.ErrorIs(t, err, errStoreDown)

	assert.ErrorIs(t, ledger.RegisterSuccess(ctx, "k"), errStoreDown)

	_, err = ledger.FailureCount(ctx, "k")
	assert.ErrorIs(t, err, errStoreDown)
}
