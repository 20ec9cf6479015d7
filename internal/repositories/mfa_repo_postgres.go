package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/models"
)

// PostgresMFARepository stores enrollments in Postgres with the TOTP secret
// sealed by AES-256-GCM.
type PostgresMFARepository struct {
	db     *database.DB
	sealer *auth.SecretSealer
}

var _ MFARepository = (*PostgresMFARepository)(nil)

func NewPostgresMFARepository(db *database.DB, sealer *auth.SecretSealer) *PostgresMFARepository {
	return &PostgresMFARepository{db: db, sealer: sealer}
}

func (r *PostgresMFARepository) Save(ctx context.Context, rec *models.MFARecord) error {
	ciphertext, nonce, err := r.sealer.Seal([]byte(rec.Secret))
	if err != nil {
		return fmt.Errorf("failed to seal TOTP secret: %w", err)
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Cascades to mfa_backup_codes, invalidating every prior code.
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_enrollments WHERE identity = $1`, rec.Identity); err != nil {
			return fmt.Errorf("failed to clear MFA enrollment: %w", err)
		}

		query := `
			INSERT INTO mfa_enrollments (identity, totp_secret_encrypted, totp_secret_nonce, created_at, verified_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, query, rec.Identity, ciphertext, nonce, rec.CreatedAt, rec.VerifiedAt); err != nil {
			return fmt.Errorf("failed to create MFA enrollment: %w", database.MapPostgresError(err))
		}

		batch := &pgx.Batch{}
		for i, code := range rec.BackupCodes {
			batch.Queue(`
				INSERT INTO mfa_backup_codes (identity, position, code_hash, used_at, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, rec.Identity, i, code.CodeHash, code.UsedAt, code.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store backup codes: %w", database.MapPostgresError(err))
		}
		return nil
	})
}

func (r *PostgresMFARepository) Get(ctx context.Context, identity string) (*models.MFARecord, error) {
	rec := &models.MFARecord{Identity: identity}
	var ciphertext, nonce []byte

	query := `
		SELECT totp_secret_encrypted, totp_secret_nonce, created_at, verified_at
		FROM mfa_enrollments
		WHERE identity = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, identity).Scan(&ciphertext, &nonce, &rec.CreatedAt, &rec.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get MFA enrollment: %w", err)
	}

	secret, err := r.sealer.Open(ciphertext, nonce)
	if err != nil {
		return nil, err
	}
	rec.Secret = string(secret)

	rows, err := r.db.Pool.Query(ctx, `
		SELECT code_hash, used_at, created_at
		FROM mfa_backup_codes
		WHERE identity = $1
		ORDER BY position
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.BackupCodeEntry
		if err := rows.Scan(&entry.CodeHash, &entry.UsedAt, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		rec.BackupCodes = append(rec.BackupCodes, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup codes: %w", err)
	}

	return rec, nil
}

func (r *PostgresMFARepository) MarkBackupCodeUsed(ctx context.Context, identity, codeHash string, at time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE mfa_backup_codes
		SET used_at = $3
		WHERE identity = $1 AND code_hash = $2 AND used_at IS NULL
	`, identity, codeHash, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark backup code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresMFARepository) MarkVerified(ctx context.Context, identity string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE mfa_enrollments
		SET verified_at = COALESCE(verified_at, $2)
		WHERE identity = $1
	`, identity, at)
	if err != nil {
		return fmt.Errorf("failed to mark MFA verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
