// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/olegiv/folio-auth/internal/middleware"
	"github.com/olegiv/folio-auth/internal/service"
)

// Routes holds the handlers and per-route middleware mounted by Register.
// Session loading, LoadUser and CSRF are expected on the parent router.
type Routes struct {
	Auth    *AuthHandler
	Account *AccountHandler
	Health  *HealthHandler
	Events  *service.EventService

	// LoginProtection rate limits login POSTs per IP. Optional.
	LoginProtection *middleware.LoginProtection
	// RateLimiter limits every auth page per IP. Optional.
	RateLimiter *middleware.IPRateLimiter
}

// Register mounts all routes on r.
func (rt Routes) Register(r chi.Router) {
	r.Get(RouteHealth, rt.Health.Health)
	r.Get(RouteHealthLive, rt.Health.Liveness)
	r.Get(RouteHealthReady, rt.Health.Readiness)

	r.Get(RouteRoot, rt.Account.Home)

	// Auth pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		if rt.RateLimiter != nil {
			r.Use(rt.RateLimiter.Middleware())
		}

		r.Get(RouteLogin, rt.Auth.LoginForm)
		if rt.LoginProtection != nil {
			r.With(rt.LoginProtection.Middleware()).Post(RouteLogin, rt.Auth.Login)
		} else {
			r.Post(RouteLogin, rt.Auth.Login)
		}

		r.Get(RouteLogout, rt.Auth.Logout)
		r.Post(RouteLogout, rt.Auth.Logout)

		r.Get(RouteRegister, rt.Auth.RegisterForm)
		r.Post(RouteRegister, rt.Auth.Register)

		r.Get(RouteForgotPassword, rt.Auth.ForgotPasswordForm)
		r.Post(RouteForgotPassword, rt.Auth.ForgotPassword)

		r.Get(RouteResetPasswordToken, rt.Auth.ResetPasswordForm)
		r.Post(RouteResetPasswordToken, rt.Auth.ResetPassword)
	})

	// Signed-in pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Use(middleware.RequireAuth)

		r.Get(RouteAccount, rt.Account.Profile)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminWithEventLog(rt.Events))
			r.Get(RouteAdmin, rt.Account.Dashboard)
			r.Post(RouteAdminUserRole, rt.Account.SetRole)
		})
	})
}
