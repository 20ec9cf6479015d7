package middleware

import (
	"net/http"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/loginguard/internal/config"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// RateLimitByIP applies every rule in order, keyed by the client IP as
// resolved through the trusted proxy list. A request must fit all rules.
// With no rules it is a no-op.
func RateLimitByIP(rules []config.RateRule, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	limiters := make([]func(http.Handler) http.Handler, 0, len(rules))
	for _, rule := range rules {
		limiters = append(limiters, httprate.Limit(
			rule.Requests,
			rule.Window,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				return pkghttp.ExtractClientIP(r, ipConfig), nil
			}),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				pkghttp.WriteError(w, http.StatusTooManyRequests, "too_many_requests", "Try again later.")
			}),
		))
	}

	return func(next http.Handler) http.Handler {
		h := next
		for i := len(limiters) - 1; i >= 0; i-- {
			h = limiters[i](h)
		}
		return h
	}
}
