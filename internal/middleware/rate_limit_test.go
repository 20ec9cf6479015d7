package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/loginguard/internal/config"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitByIP_EnforcesTightestRule(t *testing.T) {
	rules := []config.RateRule{
		{Requests: 3, Window: 10 * time.Second},
		{Requests: 5, Window: time.Minute},
	}
	h := RateLimitByIP(rules, nil)(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.0.2.1:1000", nil).Code, "request %d", i+1)
	}

	w := hit(h, "192.0.2.1:1000", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too_many_requests")

	// a different client has its own budget
	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.2:1000", nil).Code)
}

func TestRateLimitByIP_IgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	rules := []config.RateRule{{Requests: 1, Window: time.Minute}}
	h := RateLimitByIP(rules, &pkghttp.IPConfig{})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.9:1000", map[string]string{"X-Forwarded-For": "10.0.0.1"}).Code)
	assert.Equal(t, http.StatusTooManyRequests,
		hit(h, "192.0.2.9:1000", map[string]string{"X-Forwarded-For": "10.0.0.2"}).Code,
		"spoofed header must not open a new bucket")
}

func TestRateLimitByIP_TrustedProxy(t *testing.T) {
	rules := []config.RateRule{{Requests: 1, Window: time.Minute}}
	h := RateLimitByIP(rules, &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.1.1.1:1000", map[string]string{"X-Forwarded-For": "203.0.113.1"}).Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.1.1.1:1000", map[string]string{"X-Forwarded-For": "203.0.113.2"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.1.1.1:1000", map[string]string{"X-Forwarded-For": "203.0.113.1"}).Code)
}

func TestRateLimitByIP_NoRules(t *testing.T) {
	h := RateLimitByIP(nil, nil)(okHandler())
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.0.2.1:1000", nil).Code)
	}
}
