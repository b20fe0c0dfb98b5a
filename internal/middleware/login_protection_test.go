// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestLoginProtection returns a LoginProtection with a manual clock.
func newTestLoginProtection(t *testing.T, maxAttempts int, lockout, window time.Duration) (*LoginProtection, *time.Time) {
	t.Helper()

	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit:       10,
		IPBurst:           100,
		MaxFailedAttempts: maxAttempts,
		LockoutDuration:   lockout,
		AttemptWindow:     window,
	})
	t.Cleanup(lp.Stop)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lp.now = func() time.Time { return now }
	return lp, &now
}

func TestDefaultLoginProtectionConfig(t *testing.T) {
	cfg := DefaultLoginProtectionConfig()

	if cfg.IPRateLimit != 0.5 {
		t.Errorf("IPRateLimit = %v, want 0.5", cfg.IPRateLimit)
	}
	if cfg.IPBurst != 5 {
		t.Errorf("IPBurst = %d, want 5", cfg.IPBurst)
	}
	if cfg.MaxFailedAttempts != 5 {
		t.Errorf("MaxFailedAttempts = %d, want 5", cfg.MaxFailedAttempts)
	}
	if cfg.LockoutDuration != 15*time.Minute {
		t.Errorf("LockoutDuration = %v, want 15m", cfg.LockoutDuration)
	}
	if cfg.AttemptWindow != 15*time.Minute {
		t.Errorf("AttemptWindow = %v, want 15m", cfg.AttemptWindow)
	}
}

func TestNewLoginProtectionDefaultValues(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{})
	defer lp.Stop()

	if lp.maxFailedAttempts != 5 {
		t.Errorf("maxFailedAttempts = %d, want 5 (default)", lp.maxFailedAttempts)
	}
	if lp.lockoutDuration != 15*time.Minute {
		t.Errorf("lockoutDuration = %v, want 15m (default)", lp.lockoutDuration)
	}
	if lp.attemptWindow != 15*time.Minute {
		t.Errorf("attemptWindow = %v, want 15m (default)", lp.attemptWindow)
	}

	// Stop is idempotent.
	lp.Stop()
}

func TestLoginProtectionLockout(t *testing.T) {
	lp, now := newTestLoginProtection(t, 3, time.Minute, 10*time.Minute)
	email := "test@example.com"

	if locked, _ := lp.IsAccountLocked(email); locked {
		t.Fatal("account locked initially")
	}

	for i := 1; i <= 2; i++ {
		if locked, _ := lp.RecordFailedAttempt(email); locked {
			t.Fatalf("attempt %d locked the account", i)
		}
	}

	locked, duration := lp.RecordFailedAttempt(email)
	if !locked || duration != time.Minute {
		t.Fatalf("third attempt = (%v, %v), want (true, 1m)", locked, duration)
	}

	locked, remaining := lp.IsAccountLocked(email)
	if !locked || remaining != time.Minute {
		t.Fatalf("IsAccountLocked = (%v, %v), want (true, 1m)", locked, remaining)
	}

	*now = now.Add(time.Minute + time.Second)
	if locked, _ := lp.IsAccountLocked(email); locked {
		t.Error("account still locked after lockout expired")
	}
}

func TestLoginProtectionEmailIsNormalized(t *testing.T) {
	lp, _ := newTestLoginProtection(t, 2, time.Minute, time.Minute)

	lp.RecordFailedAttempt("Alice@Example.com")
	lp.RecordFailedAttempt("  alice@example.com ")

	if locked, _ := lp.IsAccountLocked("alice@example.com"); !locked {
		t.Error("attempts with different casing must count against one account")
	}
}

func TestLoginProtectionRecordSuccessfulLogin(t *testing.T) {
	lp, _ := newTestLoginProtection(t, 3, time.Minute, time.Minute)
	email := "test@example.com"

	lp.RecordFailedAttempt(email)
	lp.RecordFailedAttempt(email)
	lp.RecordSuccessfulLogin(email)

	if remaining := lp.GetRemainingAttempts(email); remaining != 3 {
		t.Errorf("GetRemainingAttempts() = %d, want 3", remaining)
	}
}

func TestLoginProtectionGetRemainingAttempts(t *testing.T) {
	lp, _ := newTestLoginProtection(t, 5, time.Minute, time.Minute)
	email := "test@example.com"

	tests := []struct {
		failures int
		want     int
	}{
		{0, 5},
		{1, 4},
		{2, 2},
	}

	for _, tt := range tests {
		for i := 0; i < tt.failures; i++ {
			lp.RecordFailedAttempt(email)
		}
		if got := lp.GetRemainingAttempts(email); got != tt.want {
			t.Errorf("after %d more failures GetRemainingAttempts() = %d, want %d", tt.failures, got, tt.want)
		}
	}
}

func TestLoginProtectionExponentialBackoff(t *testing.T) {
	lp, now := newTestLoginProtection(t, 2, 15*time.Minute, time.Hour)
	email := "test@example.com"

	want := []time.Duration{15 * time.Minute, 30 * time.Minute, time.Hour, 2 * time.Hour}
	for i, expected := range want {
		lp.RecordFailedAttempt(email)
		locked, d := lp.RecordFailedAttempt(email)
		if !locked {
			t.Fatalf("lockout %d: not locked", i+1)
		}
		if d != expected {
			t.Errorf("lockout %d duration = %v, want %v", i+1, d, expected)
		}
		*now = now.Add(d + time.Second)
	}
}

func TestLoginProtectionBackoffIsCapped(t *testing.T) {
	lp, now := newTestLoginProtection(t, 1, 10*time.Hour, 1000*time.Hour)
	email := "test@example.com"

	// The first failure only starts tracking; each later one locks again
	// with a doubled duration: 10h, 20h, then capped.
	var got []time.Duration
	for range 4 {
		_, d := lp.RecordFailedAttempt(email)
		got = append(got, d)
		*now = now.Add(d + time.Second)
	}

	want := []time.Duration{0, 10 * time.Hour, 20 * time.Hour, maxLockout}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("failure %d lockout = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestLoginProtectionAttemptWindowReset(t *testing.T) {
	lp, now := newTestLoginProtection(t, 5, time.Minute, 10*time.Minute)
	email := "test@example.com"

	lp.RecordFailedAttempt(email)
	if remaining := lp.GetRemainingAttempts(email); remaining != 4 {
		t.Fatalf("GetRemainingAttempts() = %d, want 4", remaining)
	}

	*now = now.Add(11 * time.Minute)
	if remaining := lp.GetRemainingAttempts(email); remaining != 5 {
		t.Errorf("GetRemainingAttempts() after window = %d, want 5", remaining)
	}

	// A failure after the window starts a fresh count.
	lp.RecordFailedAttempt(email)
	if remaining := lp.GetRemainingAttempts(email); remaining != 4 {
		t.Errorf("GetRemainingAttempts() after reset = %d, want 4", remaining)
	}
}

func TestLoginProtectionCleanupStaleEntries(t *testing.T) {
	lp, now := newTestLoginProtection(t, 5, time.Minute, time.Minute)

	lp.RecordFailedAttempt("stale@example.com")
	*now = now.Add(2 * time.Minute)
	lp.RecordFailedAttempt("fresh@example.com")

	lp.cleanupStaleEntries()

	lp.attemptsMu.RLock()
	_, staleKept := lp.failedAttempts["stale@example.com"]
	_, freshKept := lp.failedAttempts["fresh@example.com"]
	lp.attemptsMu.RUnlock()

	if staleKept {
		t.Error("stale entry was not removed")
	}
	if !freshKept {
		t.Error("fresh entry was removed")
	}
}

func TestLoginProtectionMiddleware(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{IPRateLimit: 0.001, IPBurst: 2})
	defer lp.Stop()

	wrapped := lp.Middleware()(okHandler())

	do := func(method, remote string) int {
		req := httptest.NewRequest(method, "/login", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := range 2 {
		if code := do(http.MethodPost, "10.0.0.1:1000"); code != http.StatusOK {
			t.Fatalf("POST %d status = %d, want 200", i+1, code)
		}
	}
	if code := do(http.MethodPost, "10.0.0.1:1001"); code != http.StatusTooManyRequests {
		t.Errorf("POST over burst status = %d, want 429", code)
	}
	if code := do(http.MethodGet, "10.0.0.1:1002"); code != http.StatusOK {
		t.Errorf("GET status = %d, want 200 (GET is not limited)", code)
	}
	if code := do(http.MethodPost, "10.0.0.2:1000"); code != http.StatusOK {
		t.Errorf("POST from other IP status = %d, want 200", code)
	}
}
