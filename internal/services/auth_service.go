package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/metrics"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

// PasswordHasher hashes and verifies account secrets.
type PasswordHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, digest string) bool
}

// AuthConfig is the guard and session policy applied by AuthService.
type AuthConfig struct {
	Policy           LockPolicy
	CaptchaThreshold int
	AccessTokenTTL   time.Duration
	IdleTimeout      time.Duration
}

// AuthService runs the login decision: lock check, challenge gate,
// credential check, MFA gate for privileged roles, then token issue.
type AuthService struct {
	users       repositories.UserRepository
	hasher      PasswordHasher
	ledger      *AttemptLedger
	mfa         *MFARegistry
	tokens      *TokenService
	challenge   ChallengeVerifier
	cfg         AuthConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	decoyMu     sync.Mutex
	decoyHash   string
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users repositories.UserRepository,
	hasher PasswordHasher,
	ledger *AttemptLedger,
	mfa *MFARegistry,
	tokens *TokenService,
	challenge ChallengeVerifier,
	cfg AuthConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:       users,
		hasher:      hasher,
		ledger:      ledger,
		mfa:         mfa,
		tokens:      tokens,
		challenge:   challenge,
		cfg:         cfg,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Login authenticates one attempt. Rejections are *models.RejectionError;
// infrastructure failures are models.ErrInternalServer.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.SessionToken, error) {
	identity := models.NormalizeIdentity(req.Identity)

	token, user, err := s.login(ctx, identity, req)

	event := pkglogger.AuditEvent{
		EventType: "login",
		Identity:  identity,
		IPAddress: req.ClientIP,
		Success:   err == nil,
	}
	if rej, ok := models.AsRejection(err); ok {
		event.FailureReason = string(rej.Reason)
		event.FailureCount = rej.FailureCount
		metrics.LoginAttemptsTotal.WithLabelValues(string(rej.Reason)).Inc()
	} else if err != nil {
		event.FailureReason = "internal_error"
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
	} else {
		event.Metadata = map[string]string{"role": user.Role}
		metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	}
	s.auditLogger.LogAuthAttempt(ctx, event)

	return token, err
}

func (s *AuthService) login(ctx context.Context, identity string, req models.LoginRequest) (*models.SessionToken, *models.User, error) {
	key := AttemptKey(identity, req.ClientIP)

	// Lock state wins over everything, including malformed input
	if err := s.checkLock(ctx, key); err != nil {
		return nil, nil, err
	}

	if identity == "" || req.Secret == "" {
		return nil, nil, models.Reject(models.ReasonInvalidCredentials)
	}

	failures, err := s.ledger.FailureCount(ctx, key)
	if err != nil {
		s.logger.Error("failed to read attempt ledger", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}
	if failures >= s.cfg.CaptchaThreshold && !s.challenge.Verify(ctx, req.ChallengeResponse, req.ClientIP) {
		s.logger.Info("login blocked: challenge required", slog.Int("failures", failures))
		return nil, nil, s.registerFailure(ctx, key, models.ReasonChallengeRequired)
	}

	user, ok := s.authenticate(ctx, identity, req.Secret)
	if !ok {
		s.logger.Info("login failed: invalid credentials")
		return nil, nil, s.registerFailure(ctx, key, models.ReasonInvalidCredentials)
	}

	if user.IsPrivileged() {
		if err := s.checkSecondFactor(ctx, key, identity, req); err != nil {
			return nil, nil, err
		}
	}

	token, err := s.startSession(ctx, key, identity, user.Role)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user logged in", slog.String("user_id", user.ID), slog.String("role", user.Role))
	return token, user, nil
}

// checkSecondFactor enforces enrollment plus one valid OTP or backup code.
// When both are supplied the OTP decides and the backup code is untouched.
func (s *AuthService) checkSecondFactor(ctx context.Context, key, identity string, req models.LoginRequest) error {
	enrolled, err := s.mfa.IsEnrolled(ctx, identity)
	if err != nil {
		s.logger.Error("failed to read MFA enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !enrolled {
		s.logger.Info("login blocked: privileged account without MFA enrollment")
		return models.Reject(models.ReasonMFARequired)
	}

	switch {
	case req.OTP != "":
		ok, err := s.mfa.VerifyTOTP(ctx, identity, req.OTP)
		if err != nil {
			s.logger.Error("failed to verify TOTP", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !ok {
			return s.registerFailure(ctx, key, models.ReasonInvalidOTP)
		}
	case req.BackupCode != "":
		ok, err := s.mfa.TryBackupCode(ctx, identity, req.BackupCode)
		if err != nil {
			s.logger.Error("failed to redeem backup code", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !ok {
			return s.registerFailure(ctx, key, models.ReasonInvalidBackupCode)
		}
		metrics.BackupCodesRedeemedTotal.Inc()
	default:
		return models.Reject(models.ReasonMFARequired)
	}
	return nil
}

// CaptchaStatus reports whether the next attempt for identity/IP must carry
// a challenge response. It never mutates the ledger.
func (s *AuthService) CaptchaStatus(ctx context.Context, identity, clientIP string) (bool, error) {
	failures, err := s.ledger.FailureCount(ctx, AttemptKey(identity, clientIP))
	if err != nil {
		s.logger.Error("failed to read attempt ledger", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return failures >= s.cfg.CaptchaThreshold, nil
}

// EnrollMFA re-verifies credentials and enrolls a privileged identity.
func (s *AuthService) EnrollMFA(ctx context.Context, identity, secret, clientIP string) (*models.MFAEnrollment, error) {
	identity = models.NormalizeIdentity(identity)
	key := AttemptKey(identity, clientIP)

	if err := s.checkLock(ctx, key); err != nil {
		return nil, err
	}

	user, ok := s.authenticate(ctx, identity, secret)
	if !ok {
		err := s.registerFailure(ctx, key, models.ReasonInvalidCredentials)
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "mfa_enroll",
			Identity:      identity,
			IPAddress:     clientIP,
			FailureReason: string(models.ReasonInvalidCredentials),
		})
		return nil, err
	}

	if !user.IsPrivileged() {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "mfa_enroll",
			Identity:      identity,
			IPAddress:     clientIP,
			FailureReason: string(models.ReasonForbidden),
		})
		return nil, models.Reject(models.ReasonForbidden)
	}

	enrollment, err := s.mfa.Enroll(ctx, identity)
	if err != nil {
		s.logger.Error("failed to enroll MFA", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction(ctx, "mfa_enrolled", identity, clientIP, nil)
	return enrollment, nil
}

// VerifyMFASetup confirms a fresh enrollment with one TOTP code. Wrong codes
// count against the same ledger as logins.
func (s *AuthService) VerifyMFASetup(ctx context.Context, identity, otp, clientIP string) error {
	identity = models.NormalizeIdentity(identity)
	key := AttemptKey(identity, clientIP)

	if err := s.checkLock(ctx, key); err != nil {
		return err
	}

	ok, err := s.mfa.ConfirmSetup(ctx, identity, otp)
	if err != nil {
		s.logger.Error("failed to confirm MFA setup", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		return s.registerFailure(ctx, key, models.ReasonInvalidOTP)
	}

	s.auditLogger.LogAccountAction(ctx, "mfa_verified", identity, clientIP, nil)
	return nil
}

// Refresh exchanges a valid token for a new one unless the session has been
// idle for longer than the idle timeout.
func (s *AuthService) Refresh(ctx context.Context, token, identity string) (*models.SessionToken, error) {
	identity = models.NormalizeIdentity(identity)

	result, err := s.refresh(ctx, token, identity)

	outcome := "success"
	if rej, ok := models.AsRejection(err); ok {
		outcome = string(rej.Reason)
	} else if err != nil {
		outcome = "error"
	}
	metrics.RefreshTotal.WithLabelValues(outcome).Inc()

	return result, err
}

func (s *AuthService) refresh(ctx context.Context, token, identity string) (*models.SessionToken, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil || claims.Subject != identity {
		s.logger.Info("refresh rejected: token invalid")
		return nil, models.Reject(models.ReasonTokenInvalid)
	}

	idle, err := s.tokens.IsIdle(ctx, identity, s.cfg.IdleTimeout)
	if err != nil {
		s.logger.Error("failed to read idle clock", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if idle {
		s.logger.Info("refresh rejected: idle timeout")
		return nil, models.Reject(models.ReasonIdleTimeout)
	}

	if err := s.tokens.RecordActivity(ctx, identity); err != nil {
		s.logger.Error("failed to record activity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session, err := s.tokens.Issue(identity, claims.Role, s.cfg.AccessTokenTTL)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return session, nil
}

func (s *AuthService) checkLock(ctx context.Context, key string) error {
	locked, retryAfter, err := s.ledger.IsLocked(ctx, key)
	if err != nil {
		s.logger.Error("failed to read attempt ledger", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if locked {
		return &models.RejectionError{
			Reason:            models.ReasonLocked,
			RetryAfterSeconds: retryAfter,
			ChallengeRequired: true,
		}
	}
	return nil
}

// registerFailure counts a failure and returns the rejection to report. A
// failure that trips the lock is reported as locked.
func (s *AuthService) registerFailure(ctx context.Context, key string, reason models.RejectReason) error {
	out, err := s.ledger.RegisterFailure(ctx, key, s.cfg.Policy)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if out.Locked {
		metrics.LockoutsTotal.Inc()
		s.logger.Warn("identity locked",
			slog.Int("failures", out.FailureCount),
			slog.Int("retry_after", out.RetryAfterSeconds),
		)
		return &models.RejectionError{
			Reason:            models.ReasonLocked,
			RetryAfterSeconds: out.RetryAfterSeconds,
			ChallengeRequired: true,
			FailureCount:      out.FailureCount,
		}
	}

	return &models.RejectionError{
		Reason:            reason,
		ChallengeRequired: out.FailureCount >= s.cfg.CaptchaThreshold,
		FailureCount:      out.FailureCount,
	}
}

// authenticate verifies secret against the identity store. Lookup errors
// and unknown identities fail closed, after a decoy hash so timing matches.
func (s *AuthService) authenticate(ctx context.Context, identity, secret string) (*models.User, bool) {
	user, err := s.users.GetByIdentity(ctx, identity)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("identity lookup failed", slog.Any("error", err))
		}
		s.hasher.Verify(ctx, secret, s.decoyDigest(ctx))
		return nil, false
	}
	if !s.hasher.Verify(ctx, secret, user.PasswordHash) {
		return nil, false
	}
	return user, true
}

// decoyDigest returns the digest verified against for unknown identities.
// It is built once on success; a failed build is retried by the next caller
// so unknown identities never skip the argon2 work.
func (s *AuthService) decoyDigest(ctx context.Context) string {
	s.decoyMu.Lock()
	defer s.decoyMu.Unlock()
	if s.decoyHash != "" {
		return s.decoyHash
	}

	// Detached from the request so a cancelled caller cannot poison it
	digest, err := s.hasher.Hash(context.WithoutCancel(ctx), "decoy-secret-for-unknown-identities")
	if err != nil {
		s.logger.Error("failed to build decoy digest", slog.Any("error", err))
		return ""
	}
	s.decoyHash = digest
	return digest
}

func (s *AuthService) startSession(ctx context.Context, key, identity, role string) (*models.SessionToken, error) {
	if err := s.ledger.RegisterSuccess(ctx, key); err != nil {
		s.logger.Error("failed to clear attempt ledger", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if err := s.tokens.RecordActivity(ctx, identity); err != nil {
		s.logger.Error("failed to record activity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	token, err := s.tokens.Issue(identity, role, s.cfg.AccessTokenTTL)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return token, nil
}
