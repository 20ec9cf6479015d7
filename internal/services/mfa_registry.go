package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
)

const BackupCodeCount = 10

// MFARegistryConfig tunes the second-factor checks.
type MFARegistryConfig struct {
	BackupCodeCost int // bcrypt cost for backup code hashes
	Skew           int // accepted time steps either side of now
	// ReplayGuard rejects a TOTP step at or before the last one accepted
	// for the same identity.
	ReplayGuard     bool
	ReplayCacheSize int
}

// MFARegistry owns TOTP enrollment, verification and single-use backup codes.
type MFARegistry struct {
	repo   repositories.MFARepository
	totp   *auth.TOTPManager
	clock  clock.Clock
	cfg    MFARegistryConfig
	logger *slog.Logger

	replayMu sync.Mutex
	replay   *lru.Cache[string, int64]
}

func NewMFARegistry(repo repositories.MFARepository, totp *auth.TOTPManager, clk clock.Clock, cfg MFARegistryConfig, logger *slog.Logger) (*MFARegistry, error) {
	if cfg.BackupCodeCost == 0 {
		cfg.BackupCodeCost = bcrypt.DefaultCost
	}
	if cfg.BackupCodeCost < bcrypt.MinCost || cfg.BackupCodeCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("backup code cost %d out of range", cfg.BackupCodeCost)
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}

	r := &MFARegistry{repo: repo, totp: totp, clock: clk, cfg: cfg, logger: logger}

	if cfg.ReplayGuard {
		size := cfg.ReplayCacheSize
		if size <= 0 {
			size = 10000
		}
		cache, err := lru.New[string, int64](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create replay cache: %w", err)
		}
		r.replay = cache
	}
	return r, nil
}

// Enroll creates a fresh secret and BackupCodeCount backup codes for
// identity, replacing any earlier enrollment. The plaintext codes are only
// ever returned here.
func (r *MFARegistry) Enroll(ctx context.Context, identity string) (*models.MFAEnrollment, error) {
	secret, uri, err := r.totp.GenerateSecret(identity)
	if err != nil {
		return nil, err
	}

	codes, err := r.totp.GenerateBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	entries := make([]models.BackupCodeEntry, len(codes))
	var g errgroup.Group
	for i, code := range codes {
		g.Go(func() error {
			hash, err := bcrypt.GenerateFromPassword([]byte(code), r.cfg.BackupCodeCost)
			if err != nil {
				return fmt.Errorf("failed to hash backup code: %w", err)
			}
			entries[i] = models.BackupCodeEntry{CodeHash: string(hash), CreatedAt: now}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	qr, err := r.totp.QRCodeDataURL(uri)
	if err != nil {
		return nil, err
	}

	rec := &models.MFARecord{
		Identity:    identity,
		Secret:      secret,
		BackupCodes: entries,
		CreatedAt:   now,
	}
	if err := r.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save MFA enrollment: %w", err)
	}

	if r.replay != nil {
		r.replayMu.Lock()
		r.replay.Remove(identity)
		r.replayMu.Unlock()
	}

	r.logger.Info("mfa enrolled", slog.Int("backup_codes", len(codes)))

	return &models.MFAEnrollment{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// IsEnrolled reports whether identity has an enrollment.
func (r *MFARegistry) IsEnrolled(ctx context.Context, identity string) (bool, error) {
	_, err := r.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// VerifyTOTP accepts a code for the current time step or one within the
// configured skew. It does not consume anything unless the replay guard is on.
func (r *MFARegistry) VerifyTOTP(ctx context.Context, identity, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return false, nil
	}

	rec, err := r.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	now := r.clock.Now()
	current := r.totp.Step(now)
	matched := false
	var matchedStep int64
	for off := -r.cfg.Skew; off <= r.cfg.Skew; off++ {
		expected, err := r.totp.CodeAt(rec.Secret, now.Add(r.totp.Period()*time.Duration(off)))
		if err != nil {
			r.logger.Error("failed to compute TOTP code", slog.Any("error", err))
			return false, nil
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && !matched {
			matched = true
			matchedStep = current + int64(off)
		}
	}
	if !matched {
		return false, nil
	}

	if r.replay != nil {
		r.replayMu.Lock()
		defer r.replayMu.Unlock()
		if last, ok := r.replay.Get(identity); ok && matchedStep <= last {
			r.logger.Warn("totp replay rejected", slog.Int64("step", matchedStep))
			return false, nil
		}
		r.replay.Add(identity, matchedStep)
	}
	return true, nil
}

// TryBackupCode redeems code if it matches an unused backup code. Each code
// succeeds at most once.
func (r *MFARegistry) TryBackupCode(ctx context.Context, identity, code string) (bool, error) {
	code = NormalizeBackupCode(code)
	if len(code) != auth.BackupCodeLength {
		return false, nil
	}

	rec, err := r.repo.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	for _, entry := range rec.BackupCodes {
		if entry.UsedAt != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(entry.CodeHash), []byte(code)) != nil {
			continue
		}
		ok, err := r.repo.MarkBackupCodeUsed(ctx, identity, entry.CodeHash, r.clock.Now())
		if err != nil {
			return false, err
		}
		if ok {
			r.logger.Info("backup code redeemed", slog.Int("remaining", rec.RemainingBackupCodes()-1))
		}
		return ok, nil
	}
	return false, nil
}

// ConfirmSetup verifies a first TOTP code after enrollment and stamps the
// enrollment as verified.
func (r *MFARegistry) ConfirmSetup(ctx context.Context, identity, code string) (bool, error) {
	ok, err := r.VerifyTOTP(ctx, identity, code)
	if err != nil || !ok {
		return false, err
	}
	if err := r.repo.MarkVerified(ctx, identity, r.clock.Now()); err != nil {
		return false, err
	}
	return true, nil
}

// NormalizeBackupCode upper-cases code and strips spaces and hyphens.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(code)))
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
