package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/services"
	pkgauth "github.com/BradenHooton/loginguard/pkg/auth"
	pkglogger "github.com/BradenHooton/loginguard/pkg/logger"
)

// seedUsers creates the configured admin and voter accounts when absent.
// An account with no email or password configured is skipped.
func seedUsers(ctx context.Context, users repositories.UserRepository, hasher services.PasswordHasher, seed config.SeedConfig, logger *slog.Logger) error {
	accounts := []struct {
		email, password, role string
	}{
		{seed.AdminEmail, seed.AdminPassword, models.RoleAdmin},
		{seed.VoterEmail, seed.VoterPassword, models.RoleVoter},
	}

	for _, a := range accounts {
		if a.email == "" || a.password == "" {
			logger.Info("no seed credentials set, skipping account", slog.String("role", a.role))
			continue
		}
		if err := ensureUser(ctx, users, hasher, a.email, a.password, a.role); err != nil {
			return err
		}
		logger.Info("seed account ready",
			slog.String("role", a.role),
			slog.String("identity", pkglogger.SanitizedEmail(a.email)),
		)
	}
	return nil
}

func ensureUser(ctx context.Context, users repositories.UserRepository, hasher services.PasswordHasher, email, password, role string) error {
	_, err := users.GetByIdentity(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if %s exists: %w", role, err)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("%s seed password rejected: %w", role, err)
	}

	digest, err := hasher.Hash(ctx, password)
	if err != nil {
		return fmt.Errorf("failed to hash %s password: %w", role, err)
	}

	err = users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: digest,
		Role:         role,
	})
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("failed to create %s user: %w", role, err)
	}
	return nil
}
