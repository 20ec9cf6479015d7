package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/background"
	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/metrics"
	middlewareCustom "github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/routes"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.Bool("guards_enabled", cfg.Guard.Enabled),
		slog.Bool("database_enabled", cfg.Database.Enabled),
		slog.Bool("redis_enabled", cfg.Redis.URL != ""),
	)

	clk := clock.System()

	// Initialize stores
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStores(initCtx, cfg, clk, logger)
	initCancel()
	if err != nil {
		logger.Error("failed to initialize stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	// Password hashing
	hasherOpts := []pkgauth.HasherOption{pkgauth.WithObserver(metrics.ObserveHash)}
	if cfg.Auth.HashConcurrency > 0 {
		hasherOpts = append(hasherOpts, pkgauth.WithConcurrency(cfg.Auth.HashConcurrency))
	}
	hasher := pkgauth.NewHasher(cfg.Auth.PasswordPepper, hasherOpts...)

	// Seed demo accounts if configured
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := seedUsers(seedCtx, st.users, hasher, cfg.Seed, logger); err != nil {
		logger.Error("failed to seed users", slog.Any("error", err))
	}
	seedCancel()

	// Initialize token manager
	tokenManager, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, clk.Now)
	if err != nil {
		logger.Error("failed to initialize token manager", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	ledger := services.NewAttemptLedger(st.attempts, clk, logger)

	mfaRegistry, err := services.NewMFARegistry(st.mfa, auth.NewTOTPManager(cfg.MFA.Issuer), clk, services.MFARegistryConfig{
		BackupCodeCost:  cfg.MFA.BackupCodeCost,
		Skew:            cfg.MFA.TOTPSkew,
		ReplayGuard:     cfg.MFA.TOTPReplayGuard,
		ReplayCacheSize: cfg.MFA.ReplayCacheSize,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize MFA registry", slog.Any("error", err))
		os.Exit(1)
	}

	tokenService := services.NewTokenService(tokenManager, st.idle, clk)

	authService := services.NewAuthService(
		st.users,
		hasher,
		ledger,
		mfaRegistry,
		tokenService,
		services.NewStaticChallengeVerifier(cfg.Guard.CaptchaValidToken),
		services.AuthConfig{
			Policy: services.LockPolicy{
				FailLimit: cfg.Guard.EffectiveFailLimit(),
				Lockout:   cfg.Guard.Lockout,
				Window:    cfg.Guard.Window,
			},
			CaptchaThreshold: cfg.Guard.EffectiveCaptchaThreshold(),
			AccessTokenTTL:   cfg.Auth.AccessTokenExpiry,
			IdleTimeout:      cfg.Auth.IdleTimeout,
		},
		logger,
		auditLogger,
	)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders())
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.HTTPHardening())
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	rateLimits := cfg.Guard.RateLimits
	if !cfg.Guard.Enabled {
		rateLimits = nil
	}

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:    authHandler,
		AdminHandler:   handlers.NewAdminHandler(),
		HealthHandler:  handlers.NewHealthHandler(st.healthChecks()),
		TokenValidator: tokenManager,
		RateLimits:     rateLimits,
		IPConfig:       ipConfig,
	})

	// Purge stale in-memory guard state
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if tasks := st.sweepTasks(cfg.Auth.IdleTimeout); len(tasks) > 0 && cfg.Guard.SweepInterval > 0 {
		cleanup := background.NewCleanupManager(tasks, clk, logger, cfg.Guard.SweepInterval)
		go cleanup.Start(sweepCtx)
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
