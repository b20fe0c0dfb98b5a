// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplatePasswordReset            = "password_reset"
	TemplateRegistrationConfirmation = "registration_confirmation"
	TemplatePasswordChanged          = "password_changed"
	TemplateRoleApproved             = "role_approved"
	TemplateRoleRevoked              = "role_revoked"
)

// MailerConfig configures a Mailer.
type MailerConfig struct {
	From     string
	SiteName string
	BaseURL  string
}

// Mailer renders transactional emails and hands them to a Sender.
type Mailer struct {
	sender    Sender
	cfg       MailerConfig
	templates map[string]*template.Template
	now       func() time.Time
}

// NewMailer parses the embedded templates and returns a Mailer.
func NewMailer(sender Sender, cfg MailerConfig) (*Mailer, error) {
	m := &Mailer{
		sender:    sender,
		cfg:       cfg,
		templates: make(map[string]*template.Template),
		now:       time.Now,
	}

	for _, name := range []string{
		TemplatePasswordReset,
		TemplateRegistrationConfirmation,
		TemplatePasswordChanged,
		TemplateRoleApproved,
		TemplateRoleRevoked,
	} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing mail template %s: %w", name, err)
		}
		m.templates[name] = tmpl
	}

	return m, nil
}

// render executes a named template with the common fields filled in.
func (m *Mailer) render(name, subject string, data map[string]any) (string, error) {
	tmpl, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown mail template %q", name)
	}

	data["Subject"] = subject
	data["SiteName"] = m.cfg.SiteName
	data["Year"] = m.now().Year()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("rendering mail template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (m *Mailer) send(ctx context.Context, to, name, subject string, data map[string]any) error {
	body, err := m.render(name, subject, data)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{
		From:     m.cfg.From,
		To:       to,
		ReplyTo:  m.cfg.From,
		Subject:  subject,
		HTMLBody: body,
	})
}

// SendPasswordReset emails a password reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, resetURL string, expiresIn time.Duration) error {
	return m.send(ctx, to, TemplatePasswordReset, "Password Reset Request", map[string]any{
		"Email":     to,
		"ResetURL":  resetURL,
		"ExpiresIn": humanDuration(expiresIn),
	})
}

// SendRegistrationConfirmation tells the first user their admin account exists.
func (m *Mailer) SendRegistrationConfirmation(ctx context.Context, to, firstName string) error {
	return m.send(ctx, to, TemplateRegistrationConfirmation, "Confirmation: account registered", map[string]any{
		"Email":     to,
		"FirstName": firstName,
		"LoginURL":  m.cfg.BaseURL + "/login",
	})
}

// SendPasswordChanged notifies a user that their password was reset.
func (m *Mailer) SendPasswordChanged(ctx context.Context, to, firstName string) error {
	return m.send(ctx, to, TemplatePasswordChanged, "Your password was changed", map[string]any{
		"Email":     to,
		"FirstName": firstName,
		"ChangedAt": m.now().UTC().Format("2 Jan 2006 15:04 MST"),
		"ForgotURL": m.cfg.BaseURL + "/forgot-password",
	})
}

// SendRoleApproved tells a user they were promoted to role.
func (m *Mailer) SendRoleApproved(ctx context.Context, to, firstName, role string) error {
	return m.send(ctx, to, TemplateRoleApproved, "Approved as "+role+": "+firstName, map[string]any{
		"Email":     to,
		"FirstName": firstName,
		"Role":      role,
		"LoginURL":  m.cfg.BaseURL + "/login",
	})
}

// SendRoleRevoked tells a user they were demoted to role.
func (m *Mailer) SendRoleRevoked(ctx context.Context, to, firstName, role string) error {
	return m.send(ctx, to, TemplateRoleRevoked, "Your account permissions have changed", map[string]any{
		"Email":     to,
		"FirstName": firstName,
		"Role":      role,
		"LoginURL":  m.cfg.BaseURL + "/login",
	})
}

// humanDuration formats whole hours and minutes, e.g. "1 hour" or "30 minutes".
func humanDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	if d >= time.Minute {
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}
