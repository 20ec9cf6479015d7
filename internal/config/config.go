package config

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Guard    GuardConfig
	MFA      MFAConfig
	Seed     SeedConfig
}

type DatabaseConfig struct {
	Enabled           bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// RedisConfig selects the shared store for guard and idle-session state.
// An empty URL keeps that state in process memory.
type RedisConfig struct {
	URL string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	JWTAlgorithm      string
	AccessTokenExpiry time.Duration
	IdleTimeout       time.Duration
	PasswordPepper    string
	HashConcurrency   int
}

// RateRule allows Requests per Window for one client.
type RateRule struct {
	Requests int
	Window   time.Duration
}

type GuardConfig struct {
	Enabled           bool
	FailLimit         int
	Lockout           time.Duration
	Window            time.Duration
	CaptchaThreshold  int
	CaptchaValidToken string
	RateLimits        []RateRule
	// SweepInterval paces the purge of stale in-memory guard state.
	SweepInterval time.Duration
}

type MFAConfig struct {
	Issuer          string
	EncryptionKey   []byte // 32 bytes, required when the database is enabled
	BackupCodeCost  int
	TOTPSkew        int
	TOTPReplayGuard bool
	ReplayCacheSize int
}

// SeedConfig holds accounts created at startup when absent.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
	VoterEmail    string
	VoterPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	rateLimits, err := ParseRateRules(getEnv("LOGIN_RATE_LIMITS", "3/10s,5/1m"))
	if err != nil {
		return nil, err
	}

	lockout := time.Duration(getEnvAsInt("LOGIN_LOCKOUT_SECONDS", 30)) * time.Second

	cfg := &Config{
		Database: DatabaseConfig{
			Enabled:           getEnvAsBool("DB_ENABLED", false),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "loginguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			JWTAlgorithm:      getEnv("JWT_ALGORITHM", "HS256"),
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 10*time.Minute),
			PasswordPepper:    getEnv("PASSWORD_PEPPER", ""),
			HashConcurrency:   getEnvAsInt("HASH_CONCURRENCY", 0),
		},
		Guard: GuardConfig{
			Enabled:           getEnvAsBool("ENABLE_LOGIN_GUARDS", true),
			FailLimit:         getEnvAsInt("LOGIN_FAIL_LIMIT", 3),
			Lockout:           lockout,
			Window:            time.Duration(getEnvAsInt("LOGIN_WINDOW_SECONDS", int(lockout/time.Second))) * time.Second,
			CaptchaThreshold:  getEnvAsInt("LOGIN_CAPTCHA_FAIL_THRESHOLD", 1),
			CaptchaValidToken: getEnv("CAPTCHA_VALID_TOKEN", "1234"),
			RateLimits:        rateLimits,
			SweepInterval:     getEnvAsDuration("MEMORY_SWEEP_INTERVAL", 5*time.Minute),
		},
		MFA: MFAConfig{
			Issuer:          getEnv("MFA_ISSUER", "EVP"),
			BackupCodeCost:  getEnvAsInt("MFA_BACKUP_CODE_COST", 10),
			TOTPSkew:        getEnvAsInt("MFA_TOTP_SKEW", 1),
			TOTPReplayGuard: getEnvAsBool("MFA_TOTP_REPLAY_GUARD", false),
			ReplayCacheSize: getEnvAsInt("MFA_REPLAY_CACHE_SIZE", 10000),
		},
		Seed: SeedConfig{
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
			VoterEmail:    getEnv("VOTER_EMAIL", ""),
			VoterPassword: getEnv("VOTER_PASSWORD", ""),
		},
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Guard.FailLimit < 1 {
		return nil, fmt.Errorf("LOGIN_FAIL_LIMIT must be at least 1")
	}
	if cfg.Guard.Lockout <= 0 {
		return nil, fmt.Errorf("LOGIN_LOCKOUT_SECONDS must be positive")
	}

	if keyHex := getEnv("MFA_ENCRYPTION_KEY", ""); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("MFA_ENCRYPTION_KEY must be 64 hex characters")
		}
		cfg.MFA.EncryptionKey = key
	}

	if cfg.Database.Enabled {
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
		if cfg.MFA.EncryptionKey == nil {
			return nil, fmt.Errorf("MFA_ENCRYPTION_KEY is required when DB_ENABLED is set")
		}
	}

	return cfg, nil
}

// EffectiveFailLimit is the lock threshold actually enforced. Disabled
// guards never lock.
func (g GuardConfig) EffectiveFailLimit() int {
	if !g.Enabled {
		return math.MaxInt
	}
	return g.FailLimit
}

// EffectiveCaptchaThreshold is the failure count that triggers the
// challenge gate. Disabled guards never challenge.
func (g GuardConfig) EffectiveCaptchaThreshold() int {
	if !g.Enabled || g.CaptchaThreshold < 1 {
		return math.MaxInt
	}
	return g.CaptchaThreshold
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// ParseRateRules parses "3/10s,5/1m" into per-client rate rules.
func ParseRateRules(s string) ([]RateRule, error) {
	var rules []RateRule
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		count, window, ok := strings.Cut(part, "/")
		if !ok {
			return nil, fmt.Errorf("invalid rate rule %q", part)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid rate rule %q", part)
		}
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid rate rule %q", part)
		}
		rules = append(rules, RateRule{Requests: n, Window: d})
	}
	return rules, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
