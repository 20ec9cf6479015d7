package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.SessionToken, error)
	CaptchaStatus(ctx context.Context, identity, clientIP string) (bool, error)
	EnrollMFA(ctx context.Context, identity, secret, clientIP string) (*models.MFAEnrollment, error)
	VerifyMFASetup(ctx context.Context, identity, otp, clientIP string) error
	Refresh(ctx context.Context, token, identity string) (*models.SessionToken, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email        string `json:"email" validate:"required,max=254"`
	Password     string `json:"password" validate:"required,max=1024"`
	OTP          string `json:"otp,omitempty" validate:"max=16"`
	BackupCode   string `json:"backup_code,omitempty" validate:"max=32"`
	CaptchaToken string `json:"captcha_token,omitempty" validate:"max=512"`
}

// EnrollMFARequest re-authenticates the caller before enrollment
type EnrollMFARequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// VerifyMFARequest confirms an enrollment with one TOTP code
type VerifyMFARequest struct {
	Email string `json:"email" validate:"required,max=254"`
	OTP   string `json:"otp" validate:"required,max=16"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
	Email       string `json:"email" validate:"required,max=254"`
}

// CaptchaStatusResponse tells a client whether to show a challenge
type CaptchaStatusResponse struct {
	CaptchaRequired bool `json:"captcha_required"`
}

// SessionResponse describes the caller's current token
type SessionResponse struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} models.SessionToken
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.service.Login(r.Context(), models.LoginRequest{
		Identity:          req.Email,
		Secret:            req.Password,
		ClientIP:          pkghttp.ExtractClientIP(r, h.ipConfig),
		OTP:               req.OTP,
		BackupCode:        req.BackupCode,
		ChallengeResponse: req.CaptchaToken,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, token)
}

// CaptchaStatus reports whether the next login for ?email= from this client
// needs a challenge response
// @Router /auth/captcha/status [get]
func (h *AuthHandler) CaptchaStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}

	required, err := h.service.CaptchaStatus(r.Context(), email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CaptchaStatusResponse{CaptchaRequired: required})
}

// EnrollMFA handles TOTP enrollment for privileged accounts
// @Success 201 {object} models.MFAEnrollment
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /auth/mfa/enroll [post]
func (h *AuthHandler) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	var req EnrollMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	enrollment, err := h.service.EnrollMFA(r.Context(), req.Email, req.Password, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	// The QR code and URI carry the secret, so no intermediary may keep them.
	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusCreated, enrollment)
}

// VerifyMFA confirms a fresh enrollment
// @Router /auth/mfa/verify [post]
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req VerifyMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.VerifyMFASetup(r.Context(), req.Email, req.OTP, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// RefreshToken exchanges a live token for a new one
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.service.Refresh(r.Context(), req.AccessToken, req.Email)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, token)
}

// Session returns the claims of the bearer token. Requires AuthMiddleware.
// @Router /auth/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	resp := SessionResponse{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

var rejectionMessages = map[models.RejectReason]string{
	models.ReasonChallengeRequired:  "a valid captcha token is required",
	models.ReasonInvalidCredentials: "invalid email or password",
	models.ReasonMFARequired:        "a one-time code or backup code is required",
	models.ReasonInvalidOTP:         "invalid one-time code",
	models.ReasonInvalidBackupCode:  "invalid backup code",
	models.ReasonForbidden:          "MFA enrollment is limited to administrators",
	models.ReasonTokenInvalid:       "invalid or expired token",
	models.ReasonIdleTimeout:        "session expired due to inactivity",
}

// writeAuthError maps service errors onto the wire. Anything that is not a
// rejection is reported as a bare 500.
func writeAuthError(w http.ResponseWriter, err error) {
	rej, ok := models.AsRejection(err)
	if !ok {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if rej.ChallengeRequired {
		w.Header().Set("X-Captcha-Required", "true")
	}

	switch rej.Reason {
	case models.ReasonLocked:
		pkghttp.WriteLocked(w, rej.RetryAfterSeconds)
	case models.ReasonForbidden:
		pkghttp.WriteError(w, http.StatusForbidden, string(rej.Reason), rejectionMessages[rej.Reason])
	default:
		pkghttp.WriteErrorResponse(w, http.StatusUnauthorized, pkghttp.ErrorResponse{
			Error:          string(rej.Reason),
			Message:        rejectionMessages[rej.Reason],
			FailedAttempts: rej.FailureCount,
		})
	}
}
