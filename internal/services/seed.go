package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
)

// SeedAccount describes a bootstrap account
type SeedAccount struct {
	Username string
	Email    string
	Password string
	Role     models.Role
}

// EnsureSeedAccounts creates each seed account that does not exist yet. Existing accounts are
// left untouched, including their passwords, so running it on every start is safe.
// It returns the number of accounts created.
func (s *accountService) EnsureSeedAccounts(ctx context.Context, seeds []SeedAccount) (int, error) {
	created := 0
	for _, seed := range seeds {
		_, err := s.accounts.FindByUsername(ctx, seed.Username)
		if err == nil {
			s.logger.Debug("seed account already exists", zap.String("username", seed.Username))
			continue
		}
		if !errors.Is(err, models.ErrAccountNotFound) {
			return created, fmt.Errorf("failed to look up seed account %q: %w", seed.Username, err)
		}

		hash, err := s.hasher.Hash(seed.Password)
		if err != nil {
			return created, fmt.Errorf("failed to hash seed account %q password: %w", seed.Username, err)
		}

		account := &models.Account{
			Username:     seed.Username,
			Email:        seed.Email,
			PasswordHash: hash,
			Role:         seed.Role,
			IsActive:     true,
			CreatedAt:    s.now().UTC(),
		}
		err = s.accounts.Create(ctx, account)
		// another instance seeding concurrently
		if errors.Is(err, models.ErrDuplicateUsername) || errors.Is(err, models.ErrDuplicateEmail) {
			s.logger.Info("seed account created concurrently", zap.String("username", seed.Username), zap.Error(err))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to create seed account %q: %w", seed.Username, err)
		}

		created++
		s.logger.Info("seed account created", zap.String("username", seed.Username), zap.String("role", string(seed.Role)))
	}

	return created, nil
}

// DefaultSeedAccounts returns the bootstrap admin and, if withTestUser is set, the test user
func DefaultSeedAccounts(adminUsername, adminEmail, adminPassword string, withTestUser bool) []SeedAccount {
	seeds := []SeedAccount{{
		Username: adminUsername,
		Email:    adminEmail,
		Password: adminPassword,
		Role:     models.RoleAdmin,
	}}
	if withTestUser {
		seeds = append(seeds, SeedAccount{
			Username: "test_user",
			Email:    "test@example.com",
			Password: "test123",
			Role:     models.RoleUser,
		})
	}
	return seeds
}
