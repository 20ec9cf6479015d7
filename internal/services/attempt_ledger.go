package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// LockPolicy controls when repeated failures lock an identity/IP pair.
type LockPolicy struct {
	FailLimit int
	Lockout   time.Duration
	// Window is the rolling window for counting failures. Zero means Lockout.
	Window time.Duration
}

func (p LockPolicy) window() time.Duration {
	if p.Window > 0 {
		return p.Window
	}
	return p.Lockout
}

// FailureOutcome is the ledger state after a registered failure.
type FailureOutcome struct {
	FailureCount      int
	Locked            bool
	RetryAfterSeconds int
}

// AttemptLedger tracks failed logins per identity/IP pair with a rolling
// window and a lockout timer. Expired records are removed lazily when read.
type AttemptLedger struct {
	store  repositories.AttemptStore
	clock  clock.Clock
	logger *slog.Logger
}

func NewAttemptLedger(store repositories.AttemptStore, clk clock.Clock, logger *slog.Logger) *AttemptLedger {
	return &AttemptLedger{store: store, clock: clk, logger: logger}
}

// AttemptKey builds the ledger key for an identity and client IP.
func AttemptKey(identity, clientIP string) string {
	if clientIP == "" {
		clientIP = pkghttp.UnknownClientIP
	}
	return fmt.Sprintf("login:%s:%s", models.NormalizeIdentity(identity), clientIP)
}

// IsLocked reports whether key is locked and, if so, the whole seconds until
// the lock lifts. A record whose lock or window has expired is deleted.
func (l *AttemptLedger) IsLocked(ctx context.Context, key string) (bool, int, error) {
	now := l.clock.Now()

	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if rec == nil {
		return false, 0, nil
	}
	if rec.Locked(now) {
		return true, ceilSeconds(rec.LockUntil.Sub(now)), nil
	}
	if rec.Stale(now) {
		_, err := l.store.Update(ctx, key, func(cur *models.AttemptRecord) *models.AttemptRecord {
			if cur == nil || cur.Stale(now) {
				return nil
			}
			return cur
		})
		if err != nil {
			return false, 0, err
		}
		l.logger.Debug("attempt record expired", slog.String("key", key))
	}
	return false, 0, nil
}

// RegisterFailure counts one failure for key and locks it once the count
// reaches policy.FailLimit. A stale record is reset before counting.
func (l *AttemptLedger) RegisterFailure(ctx context.Context, key string, policy LockPolicy) (FailureOutcome, error) {
	now := l.clock.Now()
	var out FailureOutcome

	_, err := l.store.Update(ctx, key, func(cur *models.AttemptRecord) *models.AttemptRecord {
		out = FailureOutcome{}

		if cur != nil && cur.Locked(now) {
			// Lost a race with the failure that set the lock.
			out.FailureCount = cur.FailureCount
			out.Locked = true
			out.RetryAfterSeconds = ceilSeconds(cur.LockUntil.Sub(now))
			return cur
		}

		if cur == nil || cur.Stale(now) {
			first := now
			cur = &models.AttemptRecord{FirstFailureAt: &first, Window: policy.window()}
		}

		cur.FailureCount++
		if cur.FailureCount >= policy.FailLimit {
			until := now.Add(policy.Lockout)
			cur.LockUntil = &until
			out.Locked = true
			out.RetryAfterSeconds = ceilSeconds(policy.Lockout)
		}
		out.FailureCount = cur.FailureCount
		return cur
	})
	if err != nil {
		return FailureOutcome{}, err
	}
	return out, nil
}

// RegisterSuccess clears all history for key.
func (l *AttemptLedger) RegisterSuccess(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

// FailureCount returns the effective failure count for key without
// mutating the ledger. Stale records count as zero.
func (l *AttemptLedger) FailureCount(ctx context.Context, key string) (int, error) {
	rec, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if rec == nil || rec.Stale(l.clock.Now()) {
		return 0, nil
	}
	return rec.FailureCount, nil
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
