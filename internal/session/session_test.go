// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/mysqlstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/folio-auth/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A single connection keeps the in-memory database shared.
	db.SetMaxOpenConns(1)

	// Create sessions table required by sqlite3store
	_, err = db.Exec(`
		CREATE TABLE sessions (
			token TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			expiry REAL NOT NULL
		);
		CREATE INDEX sessions_expiry_idx ON sessions(expiry);
	`)
	if err != nil {
		t.Fatalf("failed to create sessions table: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestManager(t *testing.T) *scs.SessionManager {
	t.Helper()
	return New(NewStore(setupTestDB(t), store.DialectSQLite, nil), Options{
		Lifetime: 720 * time.Hour,
		IsDev:    true,
	})
}

func TestNew_DevMode(t *testing.T) {
	sm := newTestManager(t)

	if sm.Cookie.Secure {
		t.Error("expected Cookie.Secure = false in dev mode")
	}
	if sm.Cookie.Name == "__Host-session" {
		t.Error("expected default cookie name in dev mode")
	}
}

func TestNew_ProductionMode(t *testing.T) {
	sm := New(sqlite3store.New(setupTestDB(t)), Options{Lifetime: time.Hour})

	if !sm.Cookie.Secure {
		t.Error("expected Cookie.Secure = true in production mode")
	}
	if sm.Cookie.Name != "__Host-session" {
		t.Errorf("expected __Host-session cookie name, got %q", sm.Cookie.Name)
	}
	if sm.Cookie.Path != "/" {
		t.Errorf("expected Cookie.Path = '/', got %q", sm.Cookie.Path)
	}
}

func TestNew_SessionSettings(t *testing.T) {
	sm := newTestManager(t)

	if sm.Lifetime != 720*time.Hour {
		t.Errorf("Lifetime = %v, want 720h", sm.Lifetime)
	}
	if sm.Cookie.Persist {
		t.Error("expected Cookie.Persist = false")
	}
	if !sm.Cookie.HttpOnly {
		t.Error("expected Cookie.HttpOnly = true")
	}
	if sm.Cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected SameSite = Lax, got %v", sm.Cookie.SameSite)
	}
}

func TestNewStore(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name    string
		dialect store.Dialect
		rdb     *redis.Client
		want    any
	}{
		{"sqlite", store.DialectSQLite, nil, &sqlite3store.SQLite3Store{}},
		{"mysql", store.DialectMySQL, nil, &mysqlstore.MySQLStore{}},
		{"redis wins", store.DialectSQLite, redis.NewClient(&redis.Options{Addr: "localhost:0"}), &goredisstore.RedisStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStore(db, tt.dialect, tt.rdb)
			assert.IsType(t, tt.want, got)
			if tt.rdb != nil {
				_ = tt.rdb.Close()
			}
		})
	}
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(t.Context(), "not-a-redis-url")
	assert.Error(t, err)
}

// loginHandler logs in user 42 and reports the stored id.
func loginHandler(sm *scs.SessionManager, remember bool) http.Handler {
	return sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := Login(r.Context(), sm, 42, remember); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if UserID(r.Context(), sm) != 42 {
			http.Error(w, "user id not stored", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func sessionCookie(t *testing.T, sm *scs.SessionManager, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.Cookie.Name {
			return c
		}
	}
	t.Fatalf("no %q cookie in response", sm.Cookie.Name)
	return nil
}

func TestLogin_BrowserSessionCookie(t *testing.T) {
	sm := newTestManager(t)

	rec := httptest.NewRecorder()
	loginHandler(sm, false).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookie := sessionCookie(t, sm, rec)
	assert.True(t, cookie.Expires.IsZero(), "cookie should expire with the browser session")
	assert.Zero(t, cookie.MaxAge)
}

func TestLogin_RememberMeCookie(t *testing.T) {
	sm := newTestManager(t)

	rec := httptest.NewRecorder()
	loginHandler(sm, true).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookie := sessionCookie(t, sm, rec)
	require.False(t, cookie.Expires.IsZero(), "remember-me cookie should persist")
	assert.WithinDuration(t, time.Now().Add(720*time.Hour), cookie.Expires, time.Minute)
}

func TestLogin_RenewsToken(t *testing.T) {
	sm := newTestManager(t)

	// Establish an anonymous session first.
	seed := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Put(r.Context(), "flash", "hello")
	}))
	rec := httptest.NewRecorder()
	seed.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	before := sessionCookie(t, sm, rec)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.AddCookie(before)
	rec = httptest.NewRecorder()
	loginHandler(sm, false).ServeHTTP(rec, req)
	after := sessionCookie(t, sm, rec)

	assert.NotEqual(t, before.Value, after.Value, "login must issue a fresh session token")
}

func TestLogout(t *testing.T) {
	sm := newTestManager(t)

	rec := httptest.NewRecorder()
	loginHandler(sm, true).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	cookie := sessionCookie(t, sm, rec)

	logout := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, int64(42), UserID(r.Context(), sm))
		require.NoError(t, Logout(r.Context(), sm))
		assert.Zero(t, UserID(r.Context(), sm))
	}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	logout.ServeHTTP(rec, req)

	// The old token no longer resolves to a user.
	check := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Zero(t, UserID(r.Context(), sm))
	}))
	req = httptest.NewRequest(http.MethodGet, "/account", nil)
	req.AddCookie(cookie)
	check.ServeHTTP(httptest.NewRecorder(), req)
}

func TestLogout_Anonymous(t *testing.T) {
	sm := newTestManager(t)

	h := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, Logout(r.Context(), sm))
		assert.NoError(t, Logout(r.Context(), sm))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/logout", nil))
}
