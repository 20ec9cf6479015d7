package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/background"
	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/repositories"
)

// stores holds the state backends picked from configuration: Postgres or
// memory for identities and MFA, Redis or memory for guard state.
type stores struct {
	users    repositories.UserRepository
	mfa      repositories.MFARepository
	attempts repositories.AttemptStore
	idle     repositories.IdleSessionStore

	db    *database.DB
	redis redis.UniversalClient

	// set only when guard state lives in process memory
	memAttempts *repositories.MemoryAttemptStore
	memIdle     *repositories.MemoryIdleSessionStore
}

func openStores(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st.db = db

		if err := database.Migrate(ctx, db.Pool, logger); err != nil {
			st.Close()
			return nil, err
		}

		sealer, err := auth.NewSecretSealer(cfg.MFA.EncryptionKey)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize secret sealer: %w", err)
		}

		st.users = repositories.NewPostgresUserRepository(db)
		st.mfa = repositories.NewPostgresMFARepository(db, sealer)
	} else {
		logger.Warn("database disabled, identities and MFA enrollments are kept in memory")
		st.users = repositories.NewMemoryUserRepository()
		st.mfa = repositories.NewMemoryMFARepository()
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			st.Close()
			return nil, fmt.Errorf("unable to ping redis: %w", err)
		}
		st.redis = client

		st.attempts = repositories.NewRedisAttemptStore(client, clk.Now)
		retention := cfg.Auth.IdleTimeout
		if cfg.Auth.AccessTokenExpiry > retention {
			retention = cfg.Auth.AccessTokenExpiry
		}
		st.idle = repositories.NewRedisIdleSessionStore(client, retention)
		logger.Info("redis connection established", slog.String("addr", opts.Addr))
	} else {
		st.memAttempts = repositories.NewMemoryAttemptStore()
		st.memIdle = repositories.NewMemoryIdleSessionStore()
		st.attempts = st.memAttempts
		st.idle = st.memIdle
	}

	return st, nil
}

func (s *stores) healthChecks() map[string]handlers.HealthChecker {
	checks := map[string]handlers.HealthChecker{}
	if s.db != nil {
		checks["database"] = s.db
	}
	if s.redis != nil {
		checks["redis"] = redisHealth{s.redis}
	}
	return checks
}

// sweepTasks lists the purges the in-memory stores need. Empty with Redis.
func (s *stores) sweepTasks(idleRetention time.Duration) map[string]background.PurgeFunc {
	tasks := map[string]background.PurgeFunc{}
	if s.memAttempts != nil {
		tasks["attempts"] = s.memAttempts.Purge
	}
	if s.memIdle != nil {
		tasks["idle"] = func(now time.Time) int {
			return s.memIdle.PurgeBefore(now.Add(-idleRetention))
		}
	}
	return tasks
}

func (s *stores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

type redisHealth struct {
	client redis.UniversalClient
}

func (h redisHealth) HealthCheck(ctx context.Context) error {
	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
