package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/models"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds token claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, subject, role string) *http.Request {
	claims := &models.TokenClaims{Role: role}
	claims.Subject = subject
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, req models.LoginRequest) (*models.SessionToken, error)
	CaptchaStatusFunc  func(ctx context.Context, identity, clientIP string) (bool, error)
	EnrollMFAFunc      func(ctx context.Context, identity, secret, clientIP string) (*models.MFAEnrollment, error)
	VerifyMFASetupFunc func(ctx context.Context, identity, otp, clientIP string) error
	RefreshFunc        func(ctx context.Context, token, identity string) (*models.SessionToken, error)
}

func (m *MockAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.SessionToken, error) {
	if m.LoginFunc == nil {
		return nil, models.Reject(models.ReasonInvalidCredentials)
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockAuthService) CaptchaStatus(ctx context.Context, identity, clientIP string) (bool, error) {
	if m.CaptchaStatusFunc == nil {
		return false, nil
	}
	return m.CaptchaStatusFunc(ctx, identity, clientIP)
}

func (m *MockAuthService) EnrollMFA(ctx context.Context, identity, secret, clientIP string) (*models.MFAEnrollment, error) {
	if m.EnrollMFAFunc == nil {
		return nil, models.Reject(models.ReasonForbidden)
	}
	return m.EnrollMFAFunc(ctx, identity, secret, clientIP)
}

func (m *MockAuthService) VerifyMFASetup(ctx context.Context, identity, otp, clientIP string) error {
	if m.VerifyMFASetupFunc == nil {
		return nil
	}
	return m.VerifyMFASetupFunc(ctx, identity, otp, clientIP)
}

func (m *MockAuthService) Refresh(ctx context.Context, token, identity string) (*models.SessionToken, error) {
	if m.RefreshFunc == nil {
		return nil, models.Reject(models.ReasonTokenInvalid)
	}
	return m.RefreshFunc(ctx, token, identity)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
