// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service holds the account workflows (registration, login,
// password reset) and the audit event log.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	netmail "net/mail"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/folio-auth/internal/auth"
	"github.com/olegiv/folio-auth/internal/model"
	"github.com/olegiv/folio-auth/internal/store"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = auth.MinPasswordLength

// Notifier sends the account emails. *mail.Mailer implements it.
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, resetURL string, expiresIn time.Duration) error
	SendRegistrationConfirmation(ctx context.Context, to, firstName string) error
	SendPasswordChanged(ctx context.Context, to, firstName string) error
	SendRoleApproved(ctx context.Context, to, firstName, role string) error
	SendRoleRevoked(ctx context.Context, to, firstName, role string) error
}

// RegisterInput is the registration form.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// AccountService orchestrates registration, authentication and password reset.
type AccountService struct {
	db        *sql.DB
	queries   *store.Queries
	tokens    *auth.ResetTokens
	notifier  Notifier
	sanitizer *bluemonday.Policy
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService creates an AccountService.
func NewAccountService(db *sql.DB, tokens *auth.ResetTokens, notifier Notifier) *AccountService {
	return &AccountService{
		db:        db,
		queries:   store.New(db),
		tokens:    tokens,
		notifier:  notifier,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasUsers reports whether any account exists.
func (s *AccountService) HasUsers(ctx context.Context) (bool, error) {
	count, err := s.queries.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("counting users: %w", err)
	}
	return count > 0, nil
}

// GetUser loads a user by id.
func (s *AccountService) GetUser(ctx context.Context, id int64) (store.User, error) {
	user, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return store.User{}, ErrUserNotFound
		}
		return store.User{}, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// ListUsers returns users in registration order.
func (s *AccountService) ListUsers(ctx context.Context, limit, offset int64) ([]store.User, error) {
	return s.queries.ListUsers(ctx, store.ListUsersParams{Limit: limit, Offset: offset})
}

// cleanName strips markup and surrounding whitespace from a display name.
func (s *AccountService) cleanName(name string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(name)))
}

func validatePassword(password, confirm string) error {
	if err := auth.CheckPasswordLength(password); err != nil {
		return err
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

func (s *AccountService) validateRegistration(in RegisterInput) (RegisterInput, error) {
	in.FirstName = s.cleanName(in.FirstName)
	in.LastName = s.cleanName(in.LastName)
	in.Email = NormalizeEmail(in.Email)

	if in.FirstName == "" {
		return in, &FieldError{Field: "first_name", Message: "This field is required."}
	}
	if in.LastName == "" {
		return in, &FieldError{Field: "last_name", Message: "This field is required."}
	}
	if in.Email == "" {
		return in, &FieldError{Field: "email", Message: "This field is required."}
	}
	addr, err := netmail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email || addr.Name != "" {
		return in, &FieldError{Field: "email", Message: "Invalid email address."}
	}
	if err := validatePassword(in.Password, in.ConfirmPassword); err != nil {
		return in, err
	}
	return in, nil
}

// Register creates the first account with the Admin role. Once any account
// exists every call fails with ErrRegistrationClosed regardless of input.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (store.User, error) {
	hasUsers, err := s.HasUsers(ctx)
	if err != nil {
		return store.User{}, err
	}
	if hasUsers {
		return store.User{}, ErrRegistrationClosed
	}

	in, err = s.validateRegistration(in)
	if err != nil {
		return store.User{}, err
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return store.User{}, fmt.Errorf("hashing password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.User{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := s.queries.WithTx(tx)
	now := s.now().UTC()

	// The registration row has a fixed primary key, so concurrent first
	// registrations collide here and only one transaction commits.
	if err := qtx.ClaimRegistration(ctx, store.ClaimRegistrationParams{Email: in.Email, ClaimedAt: now}); err != nil {
		if store.IsUniqueViolation(err) {
			return store.User{}, ErrRegistrationClosed
		}
		return store.User{}, fmt.Errorf("claiming registration: %w", err)
	}

	id, err := qtx.CreateUser(ctx, store.CreateUserParams{
		Email:        in.Email,
		PasswordHash: passwordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return store.User{}, ErrDuplicateEmail
		}
		return store.User{}, fmt.Errorf("creating user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if store.IsUniqueViolation(err) {
			return store.User{}, ErrRegistrationClosed
		}
		return store.User{}, fmt.Errorf("committing registration: %w", err)
	}

	user, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return store.User{}, fmt.Errorf("loading new user: %w", err)
	}

	if err := s.notifier.SendRegistrationConfirmation(ctx, user.Email, user.FirstName); err != nil {
		slog.Warn("failed to send registration confirmation", "error", err, "user_id", user.ID, "category", model.EventCategoryMail)
	}

	return user, nil
}

// dummy returns a valid hash used to equalise timing for unknown emails.
func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := auth.HashPassword("folio-dummy-password")
		if err != nil {
			slog.Error("failed to compute dummy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Authenticate verifies credentials. Unknown email and wrong password both
// return ErrInvalidCredentials. On success last_login_at is updated and the
// stored hash is upgraded when its parameters are outdated.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	user, err := s.queries.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if store.IsNotFound(err) {
			_, _ = auth.CheckPassword(password, s.dummy())
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := auth.CheckPassword(password, user.PasswordHash)
	if err != nil {
		slog.Error("stored password hash is unreadable", "error", err, "user_id", user.ID)
		return store.User{}, ErrInvalidCredentials
	}
	if !ok {
		return store.User{}, ErrInvalidCredentials
	}

	now := s.now().UTC()

	if auth.NeedsRehash(user.PasswordHash) {
		if newHash, err := auth.HashPassword(password); err == nil {
			if _, err := s.queries.UpdateUserPassword(ctx, store.UpdateUserPasswordParams{
				PasswordHash: newHash,
				UpdatedAt:    now,
				ID:           user.ID,
			}); err != nil {
				slog.Warn("failed to upgrade password hash", "error", err, "user_id", user.ID)
			} else {
				user.PasswordHash = newHash
			}
		}
	}

	if err := s.queries.UpdateUserLastLogin(ctx, store.UpdateUserLastLoginParams{
		LastLoginAt: sql.NullTime{Time: now, Valid: true},
		UpdatedAt:   now,
		ID:          user.ID,
	}); err != nil {
		slog.Error("failed to update last login", "error", err, "user_id", user.ID)
	} else {
		user.LastLoginAt = sql.NullTime{Time: now, Valid: true}
	}

	return user, nil
}

// RequestPasswordReset emails a reset link when email belongs to an account.
// Unknown addresses return nil so callers cannot tell them apart. A failed
// send returns an error matching ErrEmailDelivery.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string, resetURL func(token string) string) error {
	user, err := s.queries.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if store.IsNotFound(err) {
			slog.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, resetURL(token), s.tokens.MaxAge()); err != nil {
		return fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}
	return nil
}

// CheckResetToken returns the email carried by a reset token, or
// auth.ErrTokenExpired / auth.ErrTokenInvalid.
func (s *AccountService) CheckResetToken(token string) (string, error) {
	return s.tokens.Verify(token)
}

// ResetPassword sets a new password for the account named by a reset token.
// The stored hash is untouched on every failure path.
func (s *AccountService) ResetPassword(ctx context.Context, token, password, confirm string) (store.User, error) {
	email, err := s.tokens.Verify(token)
	if err != nil {
		return store.User{}, err
	}

	if password != confirm {
		return store.User{}, ErrPasswordMismatch
	}
	if err := auth.CheckPasswordLength(password); err != nil {
		return store.User{}, err
	}

	user, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return store.User{}, ErrUserNotFound
		}
		return store.User{}, fmt.Errorf("looking up user: %w", err)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return store.User{}, fmt.Errorf("hashing password: %w", err)
	}

	n, err := s.queries.UpdateUserPassword(ctx, store.UpdateUserPasswordParams{
		PasswordHash: passwordHash,
		UpdatedAt:    s.now().UTC(),
		ID:           user.ID,
	})
	if err != nil {
		return store.User{}, fmt.Errorf("updating password: %w", err)
	}
	if n == 0 {
		return store.User{}, ErrUserNotFound
	}
	user.PasswordHash = passwordHash

	if err := s.notifier.SendPasswordChanged(ctx, user.Email, user.FirstName); err != nil {
		slog.Warn("failed to send password change notice", "error", err, "user_id", user.ID, "category", model.EventCategoryMail)
	}

	return user, nil
}

// SetRole assigns role to the account id and emails the user an approval or
// demotion notice. Setting the current role is a no-op. Demoting the only
// remaining Admin fails with ErrLastAdmin.
func (s *AccountService) SetRole(ctx context.Context, id int64, role string) (store.User, error) {
	if !model.IsValidRole(role) {
		return store.User{}, ErrInvalidRole
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.User{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := s.queries.WithTx(tx)

	user, err := qtx.GetUserByID(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return store.User{}, ErrUserNotFound
		}
		return store.User{}, fmt.Errorf("loading user: %w", err)
	}

	previous := user.Role
	if previous == role {
		return user, nil
	}

	now := s.now().UTC()
	if _, err := qtx.UpdateUserRole(ctx, store.UpdateUserRoleParams{Role: role, UpdatedAt: now, ID: id}); err != nil {
		return store.User{}, fmt.Errorf("updating role: %w", err)
	}

	// Counted after the update inside the transaction, so two admins
	// demoting each other cannot both commit.
	if previous == model.RoleAdmin {
		admins, err := qtx.CountUsersByRole(ctx, model.RoleAdmin)
		if err != nil {
			return store.User{}, fmt.Errorf("counting admins: %w", err)
		}
		if admins == 0 {
			return store.User{}, ErrLastAdmin
		}
	}

	if err := tx.Commit(); err != nil {
		return store.User{}, fmt.Errorf("committing role change: %w", err)
	}

	user.Role = role
	user.UpdatedAt = now

	notify := s.notifier.SendRoleApproved
	if model.RoleRank(role) < model.RoleRank(previous) {
		notify = s.notifier.SendRoleRevoked
	}
	if err := notify(ctx, user.Email, user.FirstName, role); err != nil {
		slog.Warn("failed to send role change notice", "error", err, "user_id", user.ID, "category", model.EventCategoryMail)
	}

	return user, nil
}

// IsTokenError reports whether err came from reset-token verification.
func IsTokenError(err error) bool {
	return errors.Is(err, auth.ErrTokenExpired) || errors.Is(err, auth.ErrTokenInvalid)
}
