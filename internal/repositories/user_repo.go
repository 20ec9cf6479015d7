package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/models"
)

// UserRepository is the external identity store consulted at login.
type UserRepository interface {
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// PostgresUserRepository reads accounts from the users table.
type PostgresUserRepository struct {
	db *database.DB
}

var _ UserRepository = (*PostgresUserRepository)(nil)

func NewPostgresUserRepository(db *database.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// rowScanner interface for scanning user rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	query := `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = $1
	`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, models.NormalizeIdentity(identity)))
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	user.Email = models.NormalizeIdentity(user.Email)
	err := r.db.Pool.QueryRow(ctx, query, user.Email, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", database.MapPostgresError(err))
	}
	return nil
}

// MemoryUserRepository is an in-process identity store for single-instance
// deployments and tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

var _ UserRepository = (*MemoryUserRepository)(nil)

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func (r *MemoryUserRepository) GetByIdentity(_ context.Context, identity string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[models.NormalizeIdentity(identity)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &user, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = models.NormalizeIdentity(user.Email)
	if _, exists := r.users[user.Email]; exists {
		return models.ErrConflict
	}
	now := time.Now()
	user.ID = uuid.New().String()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.Email] = *user
	return nil
}
