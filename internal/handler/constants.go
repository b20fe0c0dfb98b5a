// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the root path.
	RouteRoot = "/"
	// RouteLogin is the login route.
	RouteLogin = "/login"
	// RouteLogout is the logout route.
	RouteLogout = "/logout"
	// RouteRegister is the first-admin registration route.
	RouteRegister = "/register"
	// RouteForgotPassword is the reset request route.
	RouteForgotPassword = "/forgot-password"
	// RouteResetPassword is the prefix of reset links.
	RouteResetPassword = "/reset-password"
	// RouteResetPasswordToken is the reset link pattern.
	RouteResetPasswordToken = RouteResetPassword + "/{token}"
	// RouteAccount is the signed-in user's profile.
	RouteAccount = "/account"
	// RouteAdmin is the admin dashboard.
	RouteAdmin = "/admin"
	// RouteAdminUserRole changes a user's role.
	RouteAdminUserRole = RouteAdmin + "/users/{id}/role"
	// RouteHealth is the health check route.
	RouteHealth = "/health"
	// RouteHealthLive is the liveness probe.
	RouteHealthLive = RouteHealth + "/live"
	// RouteHealthReady is the readiness probe.
	RouteHealthReady = RouteHealth + "/ready"
)

const (
	redirectLogin          = RouteLogin
	redirectRegister       = RouteRegister
	redirectForgotPassword = RouteForgotPassword
	redirectAccount        = RouteAccount
	redirectAdmin          = RouteAdmin
)

// HeaderContentType is the Content-Type HTTP header name.
const HeaderContentType = "Content-Type"
