package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// BackupCodeAlphabet omits 0/O and 1/I which read alike.
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	BackupCodeLength   = 8

	totpPeriod     = 30
	totpSecretSize = 20 // 160 bits, 32 base32 characters
)

// TOTPManager handles TOTP secret generation, provisioning and code math
type TOTPManager struct {
	issuer string // Issuer name for TOTP QR codes
}

// NewTOTPManager creates a new TOTP manager
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// Period is the length of one time step.
func (tm *TOTPManager) Period() time.Duration {
	return totpPeriod * time.Second
}

// GenerateSecret creates a fresh base32 secret for accountName and returns
// it together with its otpauth:// provisioning URI.
func (tm *TOTPManager) GenerateSecret(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// QRCodeDataURL renders a provisioning URI as a PNG data URL
func (tm *TOTPManager) QRCodeDataURL(uri string) (string, error) {
	qr, err := qrcode.New(uri, qrcode.Highest)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage), nil
}

// CodeAt computes the six digit code for secret at t.
func (tm *TOTPManager) CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// Step returns the time-step counter containing t.
func (tm *TOTPManager) Step(t time.Time) int64 {
	return t.Unix() / totpPeriod
}

// GenerateBackupCodes generates count random backup codes drawn from
// BackupCodeAlphabet.
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	buf := make([]byte, BackupCodeLength)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate random bytes: %w", err)
		}
		code := make([]byte, BackupCodeLength)
		for j, b := range buf {
			// 256 is a multiple of 32 so the modulo is unbiased.
			code[j] = BackupCodeAlphabet[int(b)%len(BackupCodeAlphabet)]
		}
		codes[i] = string(code)
	}
	return codes, nil
}
