// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the folio-auth project.
package testutil

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/olegiv/folio-auth/internal/mail"
	"github.com/olegiv/folio-auth/internal/store"
)

// TestSecret is a 32+ byte secret with enough entropy to pass config checks.
const TestSecret = "Test-Secret-Key-With-32-Bytes-0123456789"

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a completely silent test logger (error level only).
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestDB creates a temporary SQLite database with all migrations applied.
// The database is closed when the test finishes.
func TestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "folio-test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(db, store.DialectSQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	return db
}

// MailCapture is a mail.Sender that records messages instead of sending them.
// Setting Err makes every Send fail with it.
type MailCapture struct {
	mu   sync.Mutex
	msgs []mail.Message
	Err  error
}

// Send records msg or returns the configured error.
func (c *MailCapture) Send(_ context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

// SetErr changes the error returned by Send.
func (c *MailCapture) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Messages returns a copy of the recorded messages.
func (c *MailCapture) Messages() []mail.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mail.Message(nil), c.msgs...)
}

// Last returns the most recent message, or false if none was sent.
func (c *MailCapture) Last() (mail.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return mail.Message{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}

// NewMailer returns a Mailer that delivers into a MailCapture.
func NewMailer(t *testing.T) (*mail.Mailer, *MailCapture) {
	t.Helper()

	capture := &MailCapture{}
	m, err := mail.NewMailer(capture, mail.MailerConfig{
		From:     "noreply@example.com",
		SiteName: "Folio",
		BaseURL:  "http://localhost:8080",
	})
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	return m, capture
}
