// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"io"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/folio-auth/internal/auth"
	"github.com/olegiv/folio-auth/internal/middleware"
	"github.com/olegiv/folio-auth/internal/render"
	"github.com/olegiv/folio-auth/internal/service"
	"github.com/olegiv/folio-auth/internal/session"
	"github.com/olegiv/folio-auth/internal/store"
	"github.com/olegiv/folio-auth/internal/testutil"
	"github.com/olegiv/folio-auth/web"
)

// testApp is the full router served over HTTP with a real database, a
// capturing mailer and in-memory sessions.
type testApp struct {
	t        *testing.T
	db       *sql.DB
	srv      *httptest.Server
	mail     *testutil.MailCapture
	accounts *service.AccountService
	events   *service.EventService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.TestDB(t)
	mailer, capture := testutil.NewMailer(t)
	accounts := service.NewAccountService(db, auth.NewResetTokens(testutil.TestSecret), mailer)
	events := service.NewEventService(db)

	sm := session.New(memstore.New(), session.Options{Lifetime: time.Hour, IsDev: true})
	renderer := newTestRenderer(t, sm)

	lp := middleware.NewLoginProtection(middleware.LoginProtectionConfig{
		IPRateLimit:       1000,
		IPBurst:           1000,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		AttemptWindow:     15 * time.Minute,
	})
	t.Cleanup(lp.Stop)

	r := chi.NewRouter()
	r.Use(sm.LoadAndSave)
	r.Use(middleware.LoadUser(sm, accounts))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	Routes{
		Auth:            NewAuthHandler(accounts, events, renderer, sm, lp, srv.URL),
		Account:         NewAccountHandler(accounts, events, renderer),
		Health:          NewHealthHandler(db, "test"),
		Events:          events,
		LoginProtection: lp,
		RateLimiter:     middleware.NewIPRateLimiter(1000, 1000),
	}.Register(r)

	return &testApp{
		t:        t,
		db:       db,
		srv:      srv,
		mail:     capture,
		accounts: accounts,
		events:   events,
	}
}

// newTestRenderer parses the shipped page templates.
func newTestRenderer(t *testing.T, sm *scs.SessionManager) *render.Renderer {
	t.Helper()
	templatesFS, err := fs.Sub(web.Templates, "templates")
	require.NoError(t, err)
	renderer, err := render.New(render.Config{TemplatesFS: templatesFS, SessionManager: sm})
	require.NoError(t, err)
	return renderer
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (a *testApp) newBrowser() *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(a.t, err)
	return &browser{
		t:    a.t,
		base: a.srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set(HeaderContentType, "application/x-www-form-urlencoded")
	return b.do(req)
}

// expectRedirect asserts a 303 to location and returns the body of the
// page it points at, which carries the flash message.
func (b *browser) expectRedirect(resp *http.Response, location string) string {
	b.t.Helper()
	require.Equal(b.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(b.t, location, resp.Header.Get("Location"))
	_, body := b.get(location)
	return body
}

func (b *browser) register(first, last, email, password string) *http.Response {
	b.t.Helper()
	resp, _ := b.post(RouteRegister, url.Values{
		"first_name":       {first},
		"last_name":        {last},
		"email":            {email},
		"password":         {password},
		"confirm_password": {password},
	})
	return resp
}

func (b *browser) login(email, password string, remember bool) *http.Response {
	b.t.Helper()
	form := url.Values{"email": {email}, "password": {password}}
	if remember {
		form.Set("remember_me", "on")
	}
	resp, _ := b.post(RouteLogin, form)
	return resp
}

var resetLinkPattern = regexp.MustCompile(`/reset-password/([A-Za-z0-9_.\-]+)`)

// lastResetPath returns the reset path from the most recent email.
func (a *testApp) lastResetPath() string {
	a.t.Helper()
	msg, ok := a.mail.Last()
	require.True(a.t, ok, "no email sent")
	m := resetLinkPattern.FindStringSubmatch(msg.HTMLBody)
	require.NotNil(a.t, m, "no reset link in email")
	return RouteResetPassword + "/" + m[1]
}

// createUser inserts an account directly, bypassing registration.
func (a *testApp) createUser(email, password, role string) int64 {
	a.t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(a.t, err)

	now := time.Now().UTC()
	id, err := store.New(a.db).CreateUser(context.Background(), store.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(a.t, err)
	return id
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}
