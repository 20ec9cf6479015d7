package services

import (
	"context"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/clock"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
)

// TokenService issues and verifies session tokens and keeps the idle clock,
// which runs independently of token expiry.
type TokenService struct {
	tm    *auth.TokenManager
	idle  repositories.IdleSessionStore
	clock clock.Clock
}

func NewTokenService(tm *auth.TokenManager, idle repositories.IdleSessionStore, clk clock.Clock) *TokenService {
	return &TokenService{tm: tm, idle: idle, clock: clk}
}

// Issue signs a token for subject with role, valid for ttl.
func (s *TokenService) Issue(subject, role string, ttl time.Duration) (*models.SessionToken, error) {
	token, claims, err := s.tm.Generate(subject, role, ttl)
	if err != nil {
		return nil, err
	}
	return &models.SessionToken{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        role,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature and expiry only.
func (s *TokenService) Verify(token string) (*models.TokenClaims, error) {
	return s.tm.Validate(token)
}

// RecordActivity restarts the idle clock for identity.
func (s *TokenService) RecordActivity(ctx context.Context, identity string) error {
	return s.idle.Touch(ctx, identity, s.clock.Now())
}

// IsIdle reports whether identity has been inactive for longer than idleTTL.
// An identity with no recorded activity is idle.
func (s *TokenService) IsIdle(ctx context.Context, identity string, idleTTL time.Duration) (bool, error) {
	last, ok, err := s.idle.LastActivity(ctx, identity)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return s.clock.Now().Sub(last) > idleTTL, nil
}
