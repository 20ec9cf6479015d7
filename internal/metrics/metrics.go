package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login guard metrics
var (
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loginguard_auth_login_total",
			Help: "Login attempts by outcome (success or rejection reason)",
		},
		[]string{"outcome"},
	)

	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loginguard_auth_lockouts_total",
			Help: "Identity/IP pairs that crossed the failure limit",
		},
	)

	BackupCodesRedeemedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loginguard_auth_backup_codes_redeemed_total",
			Help: "Backup codes accepted",
		},
	)

	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loginguard_auth_refresh_total",
			Help: "Token refreshes by outcome",
		},
		[]string{"outcome"},
	)

	PasswordHashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loginguard_auth_password_hash_duration_seconds",
			Help:    "Time spent in argon2id per hash or verify",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loginguard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveHash records one argon2id computation.
func ObserveHash(d time.Duration) {
	PasswordHashDuration.Observe(d.Seconds())
}
