// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session configures the server-side session manager and the
// login/logout transitions stored in it.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/mysqlstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/redis/go-redis/v9"

	"github.com/olegiv/folio-auth/internal/store"
)

// KeyUserID is the session key holding the authenticated user's id.
const KeyUserID = "user_id"

// Options configures the session manager.
type Options struct {
	// Lifetime bounds every session and is the cookie lifetime for
	// "remember me" logins.
	Lifetime time.Duration
	// IsDev disables the Secure flag and the __Host- cookie prefix.
	IsDev bool
}

// NewStore returns the session store matching the deployment: Redis when a
// client is given, otherwise a table in the application database.
func NewStore(db *sql.DB, dialect store.Dialect, rdb *redis.Client) scs.Store {
	switch {
	case rdb != nil:
		return goredisstore.New(rdb)
	case dialect == store.DialectMySQL:
		return mysqlstore.New(db)
	default:
		return sqlite3store.New(db)
	}
}

// NewRedisClient connects to Redis from a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// New creates a session manager backed by st.
//
// Cookies are non-persistent by default, so a plain login ends with the
// browser session. Login with remember set upgrades the cookie to a
// persistent one that lives for opts.Lifetime.
func New(st scs.Store, opts Options) *scs.SessionManager {
	sm := scs.New()
	sm.Store = st

	sm.Lifetime = opts.Lifetime
	sm.IdleTimeout = 0
	sm.Cookie.Persist = false
	sm.Cookie.HttpOnly = true
	sm.Cookie.Path = "/"
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !opts.IsDev // Secure cookies in production only
	if !opts.IsDev {
		sm.Cookie.Name = "__Host-session"
	}

	return sm
}

// Login moves the session to the authenticated state for userID. The token
// is renewed first so a pre-login session id cannot be reused.
func Login(ctx context.Context, sm *scs.SessionManager, userID int64, remember bool) error {
	if err := sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}
	sm.Put(ctx, KeyUserID, userID)
	sm.RememberMe(ctx, remember)
	return nil
}

// Logout destroys the session. Calling it on an anonymous session is a no-op.
func Logout(ctx context.Context, sm *scs.SessionManager) error {
	if err := sm.Destroy(ctx); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}

// UserID returns the authenticated user's id, or 0 for an anonymous session.
func UserID(ctx context.Context, sm *scs.SessionManager) int64 {
	return sm.GetInt64(ctx, KeyUserID)
}
