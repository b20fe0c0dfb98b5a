package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/folio-auth/internal/auth"
	"github.com/olegiv/folio-auth/internal/model"
)

// SeedAdminParams describes the bootstrap administrator.
type SeedAdminParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SeedAdmin creates the first administrator when the users table is empty.
// It claims the registration slot in the same transaction, so public
// registration is closed afterwards exactly as if the admin had signed up.
// Returns false when users already exist.
func SeedAdmin(ctx context.Context, db *sql.DB, p SeedAdminParams) (bool, error) {
	if err := auth.CheckPasswordLength(p.Password); err != nil {
		return false, fmt.Errorf("admin password: %w", err)
	}

	queries := New(db)

	count, err := queries.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		slog.Info("users already exist, skipping admin seed")
		return false, nil
	}

	passwordHash, err := auth.HashPassword(p.Password)
	if err != nil {
		return false, fmt.Errorf("hashing password: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := queries.WithTx(tx)
	now := time.Now().UTC()

	if err := qtx.ClaimRegistration(ctx, ClaimRegistrationParams{Email: p.Email, ClaimedAt: now}); err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("claiming registration: %w", err)
	}

	id, err := qtx.CreateUser(ctx, CreateUserParams{
		Email:        p.Email,
		PasswordHash: passwordHash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return false, fmt.Errorf("creating admin user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing admin seed: %w", err)
	}

	slog.Info("created bootstrap admin user", "id", id, "email", p.Email)
	return true, nil
}
