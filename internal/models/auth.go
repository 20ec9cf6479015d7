package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the claim set of a session token. Subject holds the
// canonical identity.
type TokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest carries everything one login attempt may present.
type LoginRequest struct {
	Identity          string
	Secret            string
	ClientIP          string
	OTP               string
	BackupCode        string
	ChallengeResponse string
}

// SessionToken is the result of a successful login or refresh.
type SessionToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}
