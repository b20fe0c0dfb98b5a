// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides HTTP handlers for the authentication pages, the
// account and admin views, and health checks.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/folio-auth/internal/auth"
	"github.com/olegiv/folio-auth/internal/middleware"
	"github.com/olegiv/folio-auth/internal/model"
	"github.com/olegiv/folio-auth/internal/render"
	"github.com/olegiv/folio-auth/internal/service"
	"github.com/olegiv/folio-auth/internal/session"
)

// Flash messages shown by the authentication pages.
const (
	msgAlreadyLoggedIn     = "You are already logged in."
	msgLoggedIn            = "Logged in successfully"
	msgInvalidCredentials  = "Invalid email or password"
	msgLoggedOut           = "You have been logged out successfully."
	msgRegistrationClosed  = "Registration is closed."
	msgEmailExists         = "Email already exists, Login instead"
	msgResetSent           = "If the email is registered, a password reset link has been sent"
	msgResetDeliveryFailed = "Error sending password reset email. Please try again later."
	msgResetExpired        = "The password reset link has expired."
	msgResetInvalid        = "Invalid password reset link."
	msgPasswordMismatch    = "Passwords do not match."
	msgPasswordUpdated     = "Your password has been updated!"
	msgUserNotFound        = "User not found."
)

// fieldLabels maps form field names to the labels used in error messages.
var fieldLabels = map[string]string{
	"first_name": "First Name",
	"last_name":  "Last Name",
	"email":      "Email",
}

// AuthHandler handles login, logout, first-admin registration and password reset.
type AuthHandler struct {
	accounts        *service.AccountService
	events          *service.EventService
	renderer        *render.Renderer
	sessionManager  *scs.SessionManager
	loginProtection *middleware.LoginProtection
	baseURL         string
}

// NewAuthHandler creates a new AuthHandler. loginProtection may be nil to
// disable account lockout.
func NewAuthHandler(accounts *service.AccountService, events *service.EventService, renderer *render.Renderer,
	sm *scs.SessionManager, loginProtection *middleware.LoginProtection, baseURL string) *AuthHandler {
	return &AuthHandler{
		accounts:        accounts,
		events:          events,
		renderer:        renderer,
		sessionManager:  sm,
		loginProtection: loginProtection,
		baseURL:         strings.TrimRight(baseURL, "/"),
	}
}

// LoginForm handles GET /login.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		renderPage(w, r, h.renderer, "auth/logged_in", render.TemplateData{
			Title:     "Already logged in",
			User:      user,
			Flash:     msgAlreadyLoggedIn,
			FlashType: render.FlashInfo,
		})
		return
	}

	hasUsers, err := h.accounts.HasUsers(r.Context())
	if err != nil {
		logAndInternalError(w, "failed to count users", "error", err)
		return
	}

	renderPage(w, r, h.renderer, "auth/login", render.TemplateData{
		Title: "Log in",
		Data: map[string]any{
			"Email":        "",
			"ShowRegister": !hasUsers,
		},
	})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if middleware.IsAuthenticated(r) {
		http.Redirect(w, r, redirectLogin, http.StatusSeeOther)
		return
	}
	if !parseFormOrRedirect(w, r, h.renderer, redirectLogin) {
		return
	}

	ctx := r.Context()
	email := service.NormalizeEmail(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	remember := isChecked(r.PostFormValue("remember_me"))
	clientIP := middleware.ClientIP(r)

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(email); locked {
			slog.Warn("login attempt on locked account", "email", email, "ip", clientIP, "remaining", remaining)
			_ = h.events.LogSecurityEvent(ctx, model.EventLevelWarning, "Login blocked: account locked", nil, clientIP, map[string]any{"email": email})
			flashError(w, r, h.renderer, redirectLogin, lockedMessage(remaining))
			return
		}
	}

	user, err := h.accounts.Authenticate(ctx, email, password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			logAndInternalError(w, "database error during login", "error", err)
			return
		}

		slog.Debug("invalid login attempt", "email", email)
		_ = h.events.LogAuthEvent(ctx, model.EventLevelWarning, "Login failed: invalid credentials", nil, clientIP, map[string]any{"email": email})

		if h.loginProtection != nil {
			if locked, lockDuration := h.loginProtection.RecordFailedAttempt(email); locked {
				_ = h.events.LogSecurityEvent(ctx, model.EventLevelWarning, "Account locked due to failed attempts", nil, clientIP, map[string]any{"email": email, "duration": lockDuration.String()})
				flashError(w, r, h.renderer, redirectLogin, lockedMessage(lockDuration))
				return
			}
			if remaining := h.loginProtection.GetRemainingAttempts(email); remaining <= 3 && remaining > 0 {
				flashError(w, r, h.renderer, redirectLogin, fmt.Sprintf("%s. %d attempts remaining before the account is locked.", msgInvalidCredentials, remaining))
				return
			}
		}

		flashError(w, r, h.renderer, redirectLogin, msgInvalidCredentials)
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(email)
	}

	if err := session.Login(ctx, h.sessionManager, user.ID, remember); err != nil {
		logAndInternalError(w, "failed to establish session", "error", err, "user_id", user.ID)
		return
	}

	slog.Info("user logged in", "user_id", user.ID, "remember", remember)
	metadata := service.UserAgentMetadata(r.UserAgent())
	metadata["remember_me"] = remember
	_ = h.events.LogAuthEvent(ctx, model.EventLevelInfo, "Login successful", &user.ID, clientIP, metadata)

	flashSuccess(w, r, h.renderer, redirectAccount, msgLoggedIn)
}

// Logout handles GET and POST /logout. It succeeds for anonymous sessions too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r); user != nil {
		slog.Info("user logged out", "user_id", user.ID)
		_ = h.events.LogAuthEvent(r.Context(), model.EventLevelInfo, "Logout", middleware.GetUserIDPtr(r), middleware.ClientIP(r), nil)
	}

	if err := session.Logout(r.Context(), h.sessionManager); err != nil {
		logAndInternalError(w, "failed to destroy session", "error", err)
		return
	}

	flashSuccess(w, r, h.renderer, redirectLogin, msgLoggedOut)
}

// RegisterForm handles GET /register. The form is only available while no
// account exists.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.accounts.HasUsers(r.Context())
	if err != nil {
		logAndInternalError(w, "failed to count users", "error", err)
		return
	}
	if hasUsers {
		flashError(w, r, h.renderer, redirectLogin, msgRegistrationClosed)
		return
	}

	renderPage(w, r, h.renderer, "auth/register", render.TemplateData{
		Title: "Register",
		Data: map[string]any{
			"FirstName":         "",
			"LastName":          "",
			"Email":             "",
			"MinPasswordLength": service.MinPasswordLength,
		},
	})
}

// Register handles POST /register. The first account becomes the Admin and
// is signed in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectRegister) {
		return
	}

	ctx := r.Context()
	clientIP := middleware.ClientIP(r)

	user, err := h.accounts.Register(ctx, service.RegisterInput{
		FirstName:       r.PostFormValue("first_name"),
		LastName:        r.PostFormValue("last_name"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	})
	if err != nil {
		h.registrationFailed(w, r, err, clientIP)
		return
	}

	if err := session.Login(ctx, h.sessionManager, user.ID, false); err != nil {
		logAndInternalError(w, "failed to establish session", "error", err, "user_id", user.ID)
		return
	}

	slog.Info("admin account registered", "user_id", user.ID)
	_ = h.events.LogUserEvent(ctx, model.EventLevelInfo, "Admin account registered", &user.ID, clientIP, map[string]any{"email": user.Email})

	flashSuccess(w, r, h.renderer, redirectAdmin, fmt.Sprintf("Admin account registered: %s (%s)", user.FirstName, user.Email))
}

func (h *AuthHandler) registrationFailed(w http.ResponseWriter, r *http.Request, err error, clientIP string) {
	var fieldErr *service.FieldError
	switch {
	case errors.Is(err, service.ErrRegistrationClosed):
		_ = h.events.LogSecurityEvent(r.Context(), model.EventLevelWarning, "Registration attempt while closed", nil, clientIP, nil)
		flashError(w, r, h.renderer, redirectLogin, msgRegistrationClosed)
	case errors.Is(err, service.ErrDuplicateEmail):
		flashError(w, r, h.renderer, redirectLogin, msgEmailExists)
	case errors.As(err, &fieldErr):
		label := fieldLabels[fieldErr.Field]
		if label == "" {
			label = fieldErr.Field
		}
		flashError(w, r, h.renderer, redirectRegister, fmt.Sprintf("Error in %s: %s", label, fieldErr.Message))
	case errors.Is(err, service.ErrPasswordMismatch):
		flashError(w, r, h.renderer, redirectRegister, msgPasswordMismatch)
	case errors.Is(err, service.ErrPasswordTooShort):
		flashError(w, r, h.renderer, redirectRegister, passwordTooShortMessage())
	default:
		logAndInternalError(w, "failed to register account", "error", err)
	}
}

// ForgotPasswordForm handles GET /forgot-password.
func (h *AuthHandler) ForgotPasswordForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "auth/forgot_password", render.TemplateData{Title: "Forgot password"})
}

// ForgotPassword handles POST /forgot-password. The response is the same
// whether or not the address belongs to an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectForgotPassword) {
		return
	}

	ctx := r.Context()
	email := service.NormalizeEmail(r.PostFormValue("email"))
	if email == "" {
		flashError(w, r, h.renderer, redirectForgotPassword, "Error in Email: This field is required.")
		return
	}

	if err := h.accounts.RequestPasswordReset(ctx, email, h.resetURL); err != nil {
		if errors.Is(err, service.ErrEmailDelivery) {
			slog.Error("failed to send password reset email", "error", err, "category", model.EventCategoryMail)
			flashError(w, r, h.renderer, redirectForgotPassword, msgResetDeliveryFailed)
			return
		}
		logAndInternalError(w, "failed to request password reset", "error", err)
		return
	}

	_ = h.events.LogSecurityEvent(ctx, model.EventLevelInfo, "Password reset requested", nil, middleware.ClientIP(r), map[string]any{"email": email})
	flashInfo(w, r, h.renderer, redirectLogin, msgResetSent)
}

// ResetPasswordForm handles GET /reset-password/{token}.
func (h *AuthHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	email, err := h.accounts.CheckResetToken(token)
	if err != nil {
		h.resetLinkRejected(w, r, err)
		return
	}

	renderPage(w, r, h.renderer, "auth/reset_password", render.TemplateData{
		Title: "Reset password",
		Data: map[string]any{
			"Token":             token,
			"Email":             email,
			"MinPasswordLength": service.MinPasswordLength,
		},
	})
}

// ResetPassword handles POST /reset-password/{token}.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	self := resetPath(token)
	if !parseFormOrRedirect(w, r, h.renderer, self) {
		return
	}

	ctx := r.Context()
	user, err := h.accounts.ResetPassword(ctx, token, r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	switch {
	case err == nil:
	case service.IsTokenError(err):
		h.resetLinkRejected(w, r, err)
		return
	case errors.Is(err, service.ErrPasswordMismatch):
		flashError(w, r, h.renderer, self, msgPasswordMismatch)
		return
	case errors.Is(err, service.ErrPasswordTooShort):
		flashError(w, r, h.renderer, self, passwordTooShortMessage())
		return
	case errors.Is(err, service.ErrUserNotFound):
		flashError(w, r, h.renderer, redirectRegister, msgUserNotFound)
		return
	default:
		logAndInternalError(w, "failed to reset password", "error", err)
		return
	}

	slog.Info("password reset completed", "user_id", user.ID)
	_ = h.events.LogSecurityEvent(ctx, model.EventLevelInfo, "Password reset completed", &user.ID, middleware.ClientIP(r), nil)

	flashSuccess(w, r, h.renderer, redirectLogin, msgPasswordUpdated)
}

func (h *AuthHandler) resetLinkRejected(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrTokenExpired) {
		flashError(w, r, h.renderer, redirectForgotPassword, msgResetExpired)
		return
	}
	_ = h.events.LogSecurityEvent(r.Context(), model.EventLevelWarning, "Invalid password reset link", nil, middleware.ClientIP(r), nil)
	flashError(w, r, h.renderer, redirectForgotPassword, msgResetInvalid)
}

// resetURL builds the absolute link emailed for a reset token.
func (h *AuthHandler) resetURL(token string) string {
	return h.baseURL + resetPath(token)
}

func resetPath(token string) string {
	return RouteResetPassword + "/" + url.PathEscape(token)
}

func passwordTooShortMessage() string {
	return fmt.Sprintf("Password must be at least %d characters long.", service.MinPasswordLength)
}

func lockedMessage(d time.Duration) string {
	return fmt.Sprintf("Too many failed login attempts. Please try again in %s.", formatDuration(d))
}

// formatDuration formats a duration for display to users.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
