package services

import (
	"context"
	"crypto/subtle"
)

// ChallengeVerifier checks a human-verification response.
type ChallengeVerifier interface {
	Verify(ctx context.Context, response, clientIP string) bool
}

// StaticChallengeVerifier accepts one preconfigured token. It stands in for a
// captcha provider in development and tests.
type StaticChallengeVerifier struct {
	token []byte
}

func NewStaticChallengeVerifier(token string) *StaticChallengeVerifier {
	return &StaticChallengeVerifier{token: []byte(token)}
}

func (v *StaticChallengeVerifier) Verify(_ context.Context, response, _ string) bool {
	if len(v.token) == 0 || response == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(response), v.token) == 1
}
