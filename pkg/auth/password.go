package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

const (
	MinPasswordLen = 8
	MaxPasswordLen = 128

	saltLength = 16
	// Upper bound on the memory parameter accepted from a stored digest (KiB).
	maxMemoryKiB = 1 << 20
)

// Argon2Params are the cost parameters applied to new digests. Verification
// always uses the parameters encoded in the digest itself.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params follows the OWASP argon2id baseline.
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
}

var errInvalidHash = errors.New("invalid password hash")

// Hasher hashes and verifies secrets with argon2id after an optional
// HMAC-SHA256 pepper step. At most `concurrency` hashes run at once.
type Hasher struct {
	pepper  []byte
	params  Argon2Params
	sem     *semaphore.Weighted
	observe func(time.Duration)
}

// HasherOption customizes a Hasher.
type HasherOption func(*Hasher)

// WithParams overrides the argon2id cost parameters for new digests.
func WithParams(p Argon2Params) HasherOption {
	return func(h *Hasher) { h.params = p }
}

// WithConcurrency bounds the number of simultaneous hash computations.
func WithConcurrency(n int) HasherOption {
	return func(h *Hasher) {
		if n > 0 {
			h.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithObserver registers a callback receiving each computation's duration.
func WithObserver(fn func(time.Duration)) HasherOption {
	return func(h *Hasher) { h.observe = fn }
}

// NewHasher builds a Hasher. An empty pepper disables the pepper step.
func NewHasher(pepper string, opts ...HasherOption) *Hasher {
	h := &Hasher{
		params: DefaultArgon2Params,
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
	if pepper != "" {
		h.pepper = []byte(pepper)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash returns an argon2id PHC string for secret.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	p := h.params
	sum, err := h.derive(ctx, secret, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify reports whether secret matches digest. Malformed digests, other
// algorithms and cancelled contexts all report false.
func (h *Hasher) Verify(ctx context.Context, secret, digest string) bool {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	version, err := parseVersion(parts[2])
	if err != nil || version != argon2.Version {
		return false
	}

	mem, timeCost, threads, err := parseParams(parts[3])
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	actual, err := h.derive(ctx, secret, salt, timeCost, mem, threads, uint32(len(expected)))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func (h *Hasher) derive(ctx context.Context, secret string, salt []byte, t, m uint32, p uint8, keyLen uint32) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)

	start := time.Now()
	sum := argon2.IDKey(h.pepperize(secret), salt, t, m, p, keyLen)
	if h.observe != nil {
		h.observe(time.Since(start))
	}
	return sum, nil
}

func (h *Hasher) pepperize(secret string) []byte {
	if len(h.pepper) == 0 {
		return []byte(secret)
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(secret))
	return mac.Sum(nil)
}

func parseVersion(value string) (int, error) {
	if !strings.HasPrefix(value, "v=") {
		return 0, errInvalidHash
	}
	return strconv.Atoi(strings.TrimPrefix(value, "v="))
}

func parseParams(value string) (uint32, uint32, uint8, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return 0, 0, 0, errInvalidHash
	}

	mem, err := parseUint32Param(parts[0], "m=")
	if err != nil || mem == 0 || mem > maxMemoryKiB {
		return 0, 0, 0, errInvalidHash
	}
	timeCost, err := parseUint32Param(parts[1], "t=")
	if err != nil || timeCost == 0 {
		return 0, 0, 0, errInvalidHash
	}
	threadsVal, err := parseUint32Param(parts[2], "p=")
	if err != nil || threadsVal == 0 || threadsVal > 255 {
		return 0, 0, 0, errInvalidHash
	}
	return mem, timeCost, uint8(threadsVal), nil
}

func parseUint32Param(value, prefix string) (uint32, error) {
	if !strings.HasPrefix(value, prefix) {
		return 0, errInvalidHash
	}
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value, prefix), 10, 32)
	if err != nil {
		return 0, errInvalidHash
	}
	return uint32(parsed), nil
}

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	// Return generic error to users - never expose specific requirements to prevent enumeration attacks
	return "invalid password"
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":     true,
	"12345678":     true,
	"qwerty":       true,
	"abc123":       true,
	"password123":  true,
	"password123!": true,
	"123456":       true,
	"admin":        true,
	"letmein":      true,
	"welcome":      true,
	"monkey":       true,
	"dragon":       true,
	"master":       true,
	"passw0rd":     true,
	"trustno1":     true,
}

// ValidatePassword enforces strong password requirements on seeded accounts.
func ValidatePassword(password string) error {
	errs := make([]string, 0)

	if len(password) < MinPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		errs = append(errs, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errs = append(errs, "must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "must contain at least one digit")
	}
	if !hasSpecial {
		errs = append(errs, "must contain at least one special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "is too common, please choose a more unique password")
	}

	if len(errs) > 0 {
		return &PasswordValidationError{Errors: errs}
	}
	return nil
}
