package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	tests := map[string]string{
		"admin@example.com": "a****@*******.com",
		"a@b.io":            "a@*.io",
		"not-an-email":      "[invalid-email]",
		"@example.com":      "[invalid-email]",
		"user@":             "[invalid-email]",
		"odd@name@evp.org":  "o*******@***.org",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizedEmail(in), in)
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("email=a@b.com"))
	assert.True(t, SanitizeQueryString("OTP=123456"))
	assert.False(t, SanitizeQueryString("page=2"))
	assert.False(t, SanitizeQueryString("emails_sent=2"), "keys match exactly")
	assert.True(t, SanitizeQueryString("page=2&access_token=abc"))
	assert.True(t, SanitizeQueryString("bad=%zz"))
	assert.False(t, SanitizeQueryString(""))
}

func TestAuditLogger_LogAuthAttempt(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAuthAttempt(context.Background(), AuditEvent{
		EventType:     "login_failed",
		Identity:      "admin@example.com",
		IPAddress:     "203.0.113.10",
		FailureReason: "invalid_credentials",
		FailureCount:  2,
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "login_failed", entry["event_type"])
	assert.Equal(t, "a****@*******.com", entry["identity"])
	assert.Equal(t, "invalid_credentials", entry["failure_reason"])
	assert.Equal(t, float64(2), entry["failure_count"])
	assert.NotContains(t, buf.String(), "admin@example.com")
}

func TestAuditLogger_SuccessIsInfo(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAuthAttempt(context.Background(), AuditEvent{EventType: "login_success", Success: true})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.NotContains(t, entry, "identity")
}
