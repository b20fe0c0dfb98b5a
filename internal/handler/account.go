// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/folio-auth/internal/middleware"
	"github.com/olegiv/folio-auth/internal/model"
	"github.com/olegiv/folio-auth/internal/render"
	"github.com/olegiv/folio-auth/internal/service"
)

const (
	dashboardUserLimit  = 100
	dashboardEventLimit = 20
)

const (
	msgRoleUpdated   = "Role for %s set to %s."
	msgRoleUnchanged = "%s already has the %s role."
	msgInvalidRole   = "Unknown role."
	msgLastAdmin     = "The last admin cannot be demoted."
)

// AccountHandler serves the signed-in views.
type AccountHandler struct {
	accounts *service.AccountService
	events   *service.EventService
	renderer *render.Renderer
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, events *service.EventService, renderer *render.Renderer) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		events:   events,
		renderer: renderer,
	}
}

// Home handles GET /.
func (h *AccountHandler) Home(w http.ResponseWriter, r *http.Request) {
	if middleware.IsAuthenticated(r) {
		http.Redirect(w, r, redirectAccount, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, redirectLogin, http.StatusSeeOther)
}

// Profile handles GET /account. Requires RequireAuth.
func (h *AccountHandler) Profile(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.renderer, "account/profile", render.TemplateData{
		Title: "Account",
		User:  middleware.GetUser(r),
	})
}

// Dashboard handles GET /admin. Requires RequireAdmin.
func (h *AccountHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.accounts.ListUsers(ctx, dashboardUserLimit, 0)
	if err != nil {
		logAndInternalError(w, "failed to list users", "error", err)
		return
	}

	events, err := h.events.ListRecent(ctx, dashboardEventLimit)
	if err != nil {
		logAndInternalError(w, "failed to list events", "error", err)
		return
	}

	renderPage(w, r, h.renderer, "admin/dashboard", render.TemplateData{
		Title: "Admin",
		User:  middleware.GetUser(r),
		Data: map[string]any{
			"UserCount": len(users),
			"Users":     users,
			"Events":    events,
			"Roles":     model.AllRoles(),
		},
	})
}

// SetRole handles POST /admin/users/{id}/role. Requires RequireAdmin.
func (h *AccountHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, redirectAdmin) {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		flashError(w, r, h.renderer, redirectAdmin, msgUserNotFound)
		return
	}
	role := r.PostFormValue("role")

	ctx := r.Context()
	before, err := h.accounts.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			flashError(w, r, h.renderer, redirectAdmin, msgUserNotFound)
			return
		}
		logAndInternalError(w, "failed to load user", "error", err, "user_id", id)
		return
	}

	user, err := h.accounts.SetRole(ctx, id, role)
	switch {
	case errors.Is(err, service.ErrInvalidRole):
		flashError(w, r, h.renderer, redirectAdmin, msgInvalidRole)
		return
	case errors.Is(err, service.ErrUserNotFound):
		flashError(w, r, h.renderer, redirectAdmin, msgUserNotFound)
		return
	case errors.Is(err, service.ErrLastAdmin):
		flashError(w, r, h.renderer, redirectAdmin, msgLastAdmin)
		return
	case err != nil:
		logAndInternalError(w, "failed to change role", "error", err, "user_id", id)
		return
	}

	if before.Role == user.Role {
		flashInfo(w, r, h.renderer, redirectAdmin, fmt.Sprintf(msgRoleUnchanged, user.Email, user.Role))
		return
	}

	slog.Info("user role changed", "user_id", user.ID, "from", before.Role, "to", user.Role)
	_ = h.events.LogUserEvent(ctx, model.EventLevelInfo, "Role changed", middleware.GetUserIDPtr(r), middleware.ClientIP(r), map[string]any{
		"target_user_id": user.ID,
		"email":          user.Email,
		"from":           before.Role,
		"to":             user.Role,
	})

	flashSuccess(w, r, h.renderer, redirectAdmin, fmt.Sprintf(msgRoleUpdated, user.Email, user.Role))
}
