package auth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 32}

func newTestHasher(pepper string, opts ...HasherOption) *Hasher {
	return NewHasher(pepper, append([]HasherOption{WithParams(testParams)}, opts...)...)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{name: "valid strong password", password: "SecureP@ss123"},
		{name: "too short", password: "Pass@1", shouldFail: true},
		{name: "missing uppercase", password: "securepass@123", shouldFail: true},
		{name: "missing lowercase", password: "SECUREPASS@123", shouldFail: true},
		{name: "missing digit", password: "SecurePass@xyz", shouldFail: true},
		{name: "missing special character", password: "SecurePass123", shouldFail: true},
		{name: "common password rejected", password: "password123", shouldFail: true},
		{name: "valid with symbols", password: "MyP@ssw0rd!"},
		{name: "too long", password: "Aa1@" + strings.Repeat("x", 150), shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.shouldFail {
				require.Error(t, err)
				assert.Equal(t, "invalid password", err.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHasher_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher("pepper-value")

	digest, err := h.Hash(ctx, "SecureP@ss123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$m=64,t=1,p=1$"))
	assert.NotContains(t, digest, "SecureP@ss123")

	assert.True(t, h.Verify(ctx, "SecureP@ss123", digest))
	assert.False(t, h.Verify(ctx, "SecureP@ss124", digest), "one character off must fail")
	assert.False(t, h.Verify(ctx, "", digest))
}

func TestHasher_SaltsDiffer(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher("")

	a, err := h.Hash(ctx, "same-secret")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify(ctx, "same-secret", a))
	assert.True(t, h.Verify(ctx, "same-secret", b))
}

func TestHasher_PepperBindsDigest(t *testing.T) {
	ctx := context.Background()
	peppered := newTestHasher("server-pepper")
	other := newTestHasher("different-pepper")
	plain := newTestHasher("")

	digest, err := peppered.Hash(ctx, "SecureP@ss123")
	require.NoError(t, err)

	assert.False(t, other.Verify(ctx, "SecureP@ss123", digest))
	assert.False(t, plain.Verify(ctx, "SecureP@ss123", digest))

	plainDigest, err := plain.Hash(ctx, "SecureP@ss123")
	require.NoError(t, err)
	assert.True(t, newTestHasher("").Verify(ctx, "SecureP@ss123", plainDigest))
}

func TestHasher_VerifyMalformedDigests(t *testing.T) {
	ctx := context.Background()
	h := newTestHasher("")

	cases := []string{
		"",
		"not-a-hash",
		"$2a$10$abcdefghijklmnopqrstuuWn3dWDo4lqBP7kQ4CSVX1j0p6cqHsy6",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=18$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=64,t=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=99999999,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaGhhc2g",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$",
	}
	for _, digest := range cases {
		assert.NotPanics(t, func() {
			assert.False(t, h.Verify(ctx, "anything", digest), digest)
		})
	}
}

func TestHasher_EmptySecretRejected(t *testing.T) {
	_, err := newTestHasher("").Hash(context.Background(), "")
	assert.Error(t, err)
}

func TestHasher_CancelledContextFailsClosed(t *testing.T) {
	h := newTestHasher("", WithConcurrency(1))
	digest, err := h.Hash(context.Background(), "SecureP@ss123")
	require.NoError(t, err)

	// Hold the only slot so the next call has to wait on the context.
	require.NoError(t, h.sem.Acquire(context.Background(), 1))
	defer h.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, h.Verify(ctx, "SecureP@ss123", digest))
}

func TestHasher_ConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	h := newTestHasher("", WithConcurrency(2), WithObserver(func(time.Duration) {}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, h.sem.Acquire(context.Background(), 1))
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			h.sem.Release(1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestHasher_ObserverCalled(t *testing.T) {
	var calls int32
	h := newTestHasher("", WithObserver(func(time.Duration) { atomic.AddInt32(&calls, 1) }))

	digest, err := h.Hash(context.Background(), "SecureP@ss123")
	require.NoError(t, err)
	h.Verify(context.Background(), "SecureP@ss123", digest)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
