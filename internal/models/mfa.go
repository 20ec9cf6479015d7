package models

import (
	"time"
)

// MFARecord is the second-factor enrollment for one identity.
type MFARecord struct {
	Identity    string
	Secret      string // base32 TOTP secret
	BackupCodes []BackupCodeEntry
	CreatedAt   time.Time
	VerifiedAt  *time.Time // When first TOTP code verified
}

// BackupCodeEntry represents a single backup code
type BackupCodeEntry struct {
	CodeHash  string     `json:"code_hash"` // Bcrypt hash of backup code
	UsedAt    *time.Time `json:"used_at"`   // When used (nil = unused)
	CreatedAt time.Time  `json:"created_at"`
}

// IsVerified checks if the enrollment has been confirmed with a TOTP code
func (r *MFARecord) IsVerified() bool {
	return r.VerifiedAt != nil
}

// RemainingBackupCodes counts codes that have not been redeemed.
func (r *MFARecord) RemainingBackupCodes() int {
	n := 0
	for _, c := range r.BackupCodes {
		if c.UsedAt == nil {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the record.
func (r *MFARecord) Clone() *MFARecord {
	if r == nil {
		return nil
	}
	c := *r
	c.BackupCodes = make([]BackupCodeEntry, len(r.BackupCodes))
	for i, e := range r.BackupCodes {
		if e.UsedAt != nil {
			t := *e.UsedAt
			e.UsedAt = &t
		}
		c.BackupCodes[i] = e
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}

// MFAEnrollment is returned exactly once, when an identity enrolls.
type MFAEnrollment struct {
	Secret          string   `json:"-"`
	ProvisioningURI string   `json:"otpauth_uri"`
	QRCode          string   `json:"qr_code"`      // Data URL for QR code
	BackupCodes     []string `json:"backup_codes"` // plaintext, never retrievable again
}
