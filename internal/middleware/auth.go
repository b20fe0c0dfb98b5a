// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for authentication,
// authorization, and request protection.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/olegiv/folio-auth/internal/model"
	"github.com/olegiv/folio-auth/internal/service"
	"github.com/olegiv/folio-auth/internal/session"
	"github.com/olegiv/folio-auth/internal/store"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyUser holds the store.User resolved for the current request.
const ContextKeyUser ContextKey = "user"

// UserLoader resolves a user by id.
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (store.User, error)
}

// LoadUser resolves the session's user id against the users table on every
// request and stores the user in the request context. A session pointing at
// a user that no longer exists is destroyed and the request continues
// anonymously.
func LoadUser(sm *scs.SessionManager, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := session.UserID(r.Context(), sm)
			if userID == 0 {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if errors.Is(err, service.ErrUserNotFound) {
				slog.Info("session refers to missing user, logging out", "user_id", userID)
				_ = session.Logout(r.Context(), sm)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				slog.Error("failed to load session user", "error", err, "user_id", userID)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser returns a copy of r carrying user, as LoadUser would.
func WithUser(r *http.Request, user store.User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextKeyUser, user))
}

// GetUser retrieves the current user from the request context.
// Returns nil if no user is in context.
func GetUser(r *http.Request) *store.User {
	user, ok := r.Context().Value(ContextKeyUser).(store.User)
	if !ok {
		return nil
	}
	return &user
}

// IsAuthenticated reports whether the request carries a resolved user.
func IsAuthenticated(r *http.Request) bool {
	return GetUser(r) != nil
}

// GetUserIDPtr returns a pointer to the current user's ID, or nil when anonymous.
// Used for the optional user id of event log entries.
func GetUserIDPtr(r *http.Request) *int64 {
	if user := GetUser(r); user != nil {
		id := user.ID
		return &id
	}
	return nil
}

// ClientIP returns the client address without the port. chi's RealIP
// middleware has already replaced RemoteAddr with the proxy-reported address
// when one was present.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// RequireAuth redirects anonymous requests to the login page.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole creates middleware that admits users holding any of roles.
// Anonymous requests are redirected to the login page; authenticated users
// without a matching role get 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return RequireRoleWithEventLog(nil, roles...)
}

// RequireRoleWithEventLog is RequireRole that also records denials in the
// event log when events is non-nil.
func RequireRoleWithEventLog(events *service.EventService, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			if !model.HasAnyRole(user.Role, roles...) {
				slog.Warn("access denied",
					"status", http.StatusForbidden,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", user.ID,
					"user_role", user.Role,
					"required_roles", roles,
					"ip", ClientIP(r),
				)

				if events != nil {
					_ = events.LogSecurityEvent(r.Context(), model.EventLevelWarning,
						"Access denied: insufficient permissions", GetUserIDPtr(r), ClientIP(r),
						map[string]any{
							"method":         r.Method,
							"path":           r.URL.Path,
							"user_role":      user.Role,
							"required_roles": roles,
						})
				}

				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is shorthand for RequireRole(model.RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)
}

// RequireAdminWithEventLog is RequireAdmin with denials recorded in the event log.
func RequireAdminWithEventLog(events *service.EventService) func(http.Handler) http.Handler {
	return RequireRoleWithEventLog(events, model.RoleAdmin)
}
