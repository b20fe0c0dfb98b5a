// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"errors"
	"fmt"

	"github.com/olegiv/folio-auth/internal/auth"
)

// Account errors. Handlers branch on these with errors.Is.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = auth.ErrPasswordTooShort
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailDelivery      = errors.New("email delivery failed")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidRole        = errors.New("unknown role")
	ErrLastAdmin          = errors.New("cannot demote the last admin")
)

// FieldError describes a single invalid form field. It matches ErrInvalidInput.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) succeed.
func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}
