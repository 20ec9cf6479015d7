package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Login decision errors. Each one maps to a RejectReason on the wire.
var (
	ErrLocked             = errors.New("identity is temporarily locked")
	ErrChallengeRequired  = errors.New("captcha required or invalid")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa required")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrInvalidBackupCode  = errors.New("invalid backup code")
	ErrTokenInvalid       = errors.New("token expired or invalid")
	ErrIdleTimeout        = errors.New("session idle timeout")
)

// RejectReason is the machine-readable reason attached to a rejected attempt.
type RejectReason string

const (
	ReasonLocked             RejectReason = "locked"
	ReasonChallengeRequired  RejectReason = "captcha_required_or_invalid"
	ReasonInvalidCredentials RejectReason = "invalid_credentials"
	ReasonMFARequired        RejectReason = "mfa_required"
	ReasonInvalidOTP         RejectReason = "invalid_otp"
	ReasonInvalidBackupCode  RejectReason = "invalid_backup_code"
	ReasonForbidden          RejectReason = "forbidden"
	ReasonTokenInvalid       RejectReason = "token_expired_or_invalid"
	ReasonIdleTimeout        RejectReason = "idle_timeout"
)

var reasonErrors = map[RejectReason]error{
	ReasonLocked:             ErrLocked,
	ReasonChallengeRequired:  ErrChallengeRequired,
	ReasonInvalidCredentials: ErrInvalidCredentials,
	ReasonMFARequired:        ErrMFARequired,
	ReasonInvalidOTP:         ErrInvalidOTP,
	ReasonInvalidBackupCode:  ErrInvalidBackupCode,
	ReasonForbidden:          ErrForbidden,
	ReasonTokenInvalid:       ErrTokenInvalid,
	ReasonIdleTimeout:        ErrIdleTimeout,
}

// RejectionError is the structured outcome of a refused login, enrollment or
// refresh. It unwraps to the sentinel for its reason.
type RejectionError struct {
	Reason            RejectReason
	RetryAfterSeconds int  // set for ReasonLocked
	ChallengeRequired bool // caller should present a captcha on the next attempt
	FailureCount      int  // running count for ReasonInvalidCredentials
}

// Reject builds a RejectionError for reason.
func Reject(reason RejectReason) *RejectionError {
	return &RejectionError{Reason: reason}
}

func (e *RejectionError) Error() string {
	if e.Reason == ReasonLocked {
		return fmt.Sprintf("%s (retry after %ds)", e.Reason, e.RetryAfterSeconds)
	}
	return string(e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return reasonErrors[e.Reason]
}

// AsRejection extracts a RejectionError from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
