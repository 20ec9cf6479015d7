//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/handlers"
	middlewareCustom "github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/routes"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

// TestServer wraps httptest.Server with Postgres and Redis backed stores
type TestServer struct {
	Server *httptest.Server
	Clock  *clock.Fake
	Users  repositories.UserRepository
	Hasher *pkgauth.Hasher
	TOTP   *auth.TOTPManager
}

// NewTestServer wires the full router the way cmd/api does, against the
// given containers and a fake clock.
func NewTestServer(db *TestDB, rdb *TestRedis, rateLimits []config.RateRule) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	clk := clock.NewFake(time.Now().UTC())

	sealer, err := auth.NewSecretSealer(testEncryptionKey)
	if err != nil {
		return nil, err
	}

	users := repositories.NewPostgresUserRepository(db.DB)
	mfaRepo := repositories.NewPostgresMFARepository(db.DB, sealer)
	attempts := repositories.NewRedisAttemptStore(rdb.Client, clk.Now)
	idle := repositories.NewRedisIdleSessionStore(rdb.Client, testIdleTimeout)

	hasher := pkgauth.NewHasher("", pkgauth.WithParams(pkgauth.Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 32}))

	tokenManager, err := auth.NewTokenManager(testJWTSecret, "HS256", clk.Now)
	if err != nil {
		return nil, err
	}

	totp := auth.NewTOTPManager(testMFAIssuer)
	registry, err := services.NewMFARegistry(mfaRepo, totp, clk, services.MFARegistryConfig{
		BackupCodeCost: testBackupCodeCost,
		Skew:           1,
	}, logger)
	if err != nil {
		return nil, err
	}

	authService := services.NewAuthService(
		users,
		hasher,
		services.NewAttemptLedger(attempts, clk, logger),
		registry,
		services.NewTokenService(tokenManager, idle, clk),
		services.NewStaticChallengeVerifier(testCaptchaToken),
		services.AuthConfig{
			Policy:           services.LockPolicy{FailLimit: testFailLimit, Lockout: testLockout},
			CaptchaThreshold: testCaptchaAfter,
			AccessTokenTTL:   testAccessTTL,
			IdleTimeout:      testIdleTimeout,
		},
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	ipConfig := &pkghttp.IPConfig{}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders())
	r.Use(middlewareCustom.HTTPHardening())
	r.Use(middlewareCustom.SecureLogger(logger))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, routes.Dependencies{
		AuthHandler:    handlers.NewAuthHandler(authService, ipConfig),
		AdminHandler:   handlers.NewAdminHandler(),
		HealthHandler:  handlers.NewHealthHandler(map[string]handlers.HealthChecker{"database": db.DB}),
		TokenValidator: tokenManager,
		RateLimits:     rateLimits,
		IPConfig:       ipConfig,
	})

	return &TestServer{
		Server: httptest.NewServer(r),
		Clock:  clk,
		Users:  users,
		Hasher: hasher,
		TOTP:   totp,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Login posts credentials plus any extra fields to /auth/login
func (ts *TestServer) Login(email, password string, extra map[string]string) (*http.Response, error) {
	body := map[string]string{"email": email, "password": password}
	for k, v := range extra {
		body[k] = v
	}
	return ts.Request(http.MethodPost, "/auth/login", body, nil)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ParseErrorResponse decodes the standard error envelope
func ParseErrorResponse(resp *http.Response) (pkghttp.ErrorResponse, error) {
	var out pkghttp.ErrorResponse
	err := ParseJSONResponse(resp, &out)
	return out, err
}

// ParseSession decodes a successful login or refresh body
func ParseSession(resp *http.Response) (*models.SessionToken, error) {
	var out models.SessionToken
	if err := ParseJSONResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
