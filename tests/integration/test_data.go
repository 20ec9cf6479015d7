//go:build integration

package integration

import (
	"fmt"
	"time"
)

const (
	testJWTSecret     = "integration-secret-32-characters-long"
	testCaptchaToken  = "1234"
	testClientIP      = "198.51.100.23"
	testPassword      = "TestPassword123!"
	testFailLimit     = 3
	testLockout       = 30 * time.Second
	testCaptchaAfter  = 1
	testAccessTTL     = 15 * time.Minute
	testIdleTimeout   = 10 * time.Minute
	testMFAIssuer     = "LoginGuardTest"
	testBackupCodeCost = 4
)

var testEncryptionKey = []byte("integration-mfa-key-32-bytes!!!!")

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = testPassword
	return
}
