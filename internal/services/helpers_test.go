package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

const (
	testAdminEmail    = "admin@evp.test"
	testAdminPassword = "Adm1n-Passphrase!"
	testVoterEmail    = "voter@evp.test"
	testVoterPassword = "V0ter-Passphrase!"
	testClientIP      = "203.0.113.7"
	testChallenge     = "1234"
	testJWTSecret     = "test-secret-with-enough-length!!"
)

var errStoreDown = errors.New("store unavailable")

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIdentityFunc func(ctx context.Context, identity string) (*models.User, error)
	CreateFunc        func(ctx context.Context, user *models.User) error
}

func (m *MockUserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	if m.GetByIdentityFunc != nil {
		return m.GetByIdentityFunc(ctx, identity)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil
}

// MockAttemptStore implements AttemptStore for testing
type MockAttemptStore struct {
	GetFunc    func(ctx context.Context, key string) (*models.AttemptRecord, error)
	UpdateFunc func(ctx context.Context, key string, fn repositories.AttemptUpdateFunc) (*models.AttemptRecord, error)
	DeleteFunc func(ctx context.Context, key string) error
}

func (m *MockAttemptStore) Get(ctx context.Context, key string) (*models.AttemptRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, nil
}

func (m *MockAttemptStore) Update(ctx context.Context, key string, fn repositories.AttemptUpdateFunc) (*models.AttemptRecord, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, fn)
	}
	return fn(nil), nil
}

func (m *MockAttemptStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

// MockChallengeVerifier implements ChallengeVerifier for testing
type MockChallengeVerifier struct {
	VerifyFunc func(ctx context.Context, response, clientIP string) bool
}

func (m *MockChallengeVerifier) Verify(ctx context.Context, response, clientIP string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, response, clientIP)
	}
	return false
}

// testEnv bundles an AuthService wired to in-memory stores and a fake clock.
type testEnv struct {
	svc    *AuthService
	clock  *clock.Fake
	users  *repositories.MemoryUserRepository
	store  *repositories.MemoryAttemptStore
	mfaRep *repositories.MemoryMFARepository
	mfa    *MFARegistry
	totp   *auth.TOTPManager
	tokens *TokenService
	hasher *pkgauth.Hasher
	cfg    AuthConfig
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher() *pkgauth.Hasher {
	return pkgauth.NewHasher("test-pepper", pkgauth.WithParams(pkgauth.Argon2Params{
		Time:    1,
		Memory:  64,
		Threads: 1,
		KeyLen:  32,
	}))
}

func defaultTestAuthConfig() AuthConfig {
	return AuthConfig{
		Policy:           LockPolicy{FailLimit: 3, Lockout: 30 * time.Second},
		CaptchaThreshold: 1,
		AccessTokenTTL:   15 * time.Minute,
		IdleTimeout:      10 * time.Minute,
	}
}

func newTestEnv(t *testing.T, cfg AuthConfig) *testEnv {
	t.Helper()

	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	logger := testLogger()
	hasher := testHasher()

	users := repositories.NewMemoryUserRepository()
	for _, u := range []struct{ email, password, role string }{
		{testAdminEmail, testAdminPassword, models.RoleAdmin},
		{testVoterEmail, testVoterPassword, models.RoleVoter},
	} {
		digest, err := hasher.Hash(context.Background(), u.password)
		require.NoError(t, err)
		require.NoError(t, users.Create(context.Background(), &models.User{
			Email:        u.email,
			PasswordHash: digest,
			Role:         u.role,
		}))
	}

	store := repositories.NewMemoryAttemptStore()
	ledger := NewAttemptLedger(store, clk, logger)

	totp := auth.NewTOTPManager("EVP")
	mfaRepo := repositories.NewMemoryMFARepository()
	registry, err := NewMFARegistry(mfaRepo, totp, clk, MFARegistryConfig{
		BackupCodeCost: bcrypt.MinCost,
		Skew:           1,
	}, logger)
	require.NoError(t, err)

	tm, err := auth.NewTokenManager(testJWTSecret, "HS256", clk.Now)
	require.NoError(t, err)
	tokens := NewTokenService(tm, repositories.NewMemoryIdleSessionStore(), clk)

	svc := NewAuthService(
		users,
		hasher,
		ledger,
		registry,
		tokens,
		NewStaticChallengeVerifier(testChallenge),
		cfg,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	return &testEnv{
		svc:    svc,
		clock:  clk,
		users:  users,
		store:  store,
		mfaRep: mfaRepo,
		mfa:    registry,
		totp:   totp,
		tokens: tokens,
		hasher: hasher,
		cfg:    cfg,
	}
}

// enrollAdmin enrolls the seeded admin and returns the plaintext enrollment.
func (e *testEnv) enrollAdmin(t *testing.T) *models.MFAEnrollment {
	t.Helper()
	enrollment, err := e.svc.EnrollMFA(context.Background(), testAdminEmail, testAdminPassword, testClientIP)
	require.NoError(t, err)
	return enrollment
}

// currentOTP returns the TOTP code for secret at the fake clock's time.
func (e *testEnv) currentOTP(t *testing.T, secret string) string {
	t.Helper()
	code, err := e.totp.CodeAt(secret, e.clock.Now())
	require.NoError(t, err)
	return code
}

func requireRejection(t *testing.T, err error, reason models.RejectReason) *models.RejectionError {
	t.Helper()
	rej, ok := models.AsRejection(err)
	require.Truef(t, ok, "expected rejection %q, got %v", reason, err)
	require.Equal(t, reason, rej.Reason)
	return rej
}
