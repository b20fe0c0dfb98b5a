// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/olegiv/folio-auth/internal/auth"
	"github.com/olegiv/folio-auth/internal/config"
	"github.com/olegiv/folio-auth/internal/handler"
	"github.com/olegiv/folio-auth/internal/logging"
	"github.com/olegiv/folio-auth/internal/mail"
	"github.com/olegiv/folio-auth/internal/middleware"
	"github.com/olegiv/folio-auth/internal/render"
	"github.com/olegiv/folio-auth/internal/service"
	"github.com/olegiv/folio-auth/internal/session"
	"github.com/olegiv/folio-auth/internal/store"
	"github.com/olegiv/folio-auth/internal/version"
	"github.com/olegiv/folio-auth/web"
)

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	purgeEvents := flag.Bool("purge-events", false, "Delete event log entries older than FOLIO_EVENT_RETENTION and exit")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Folio - portfolio site authentication\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_SECRET_KEY       Signing key for sessions and reset links (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_DATABASE_URL     sqlite://path, sqlite3://path or mysql://dsn (default: sqlite://./data/folio.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_BASE_URL         Public URL used in emailed links (default: http://localhost:8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_ENV              Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_REDIS_URL        Redis URL for the session store (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_SMTP_HOST        SMTP relay; without it emails are only logged\n")
		_, _ = fmt.Fprintf(os.Stderr, "  FOLIO_EVENT_RETENTION  Event log age removed by -purge-events (default: 2160h)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Printf("folio %s\n", version.Get())
		os.Exit(0)
	}

	if err := run(*envFile, *purgeEvents); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(envFile string, purgeEvents bool) error {
	// Load .env file if present (development)
	_ = godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	baseHandler := logging.NewHandler(os.Stdout, logLevel, cfg.IsDevelopment())
	slog.SetDefault(slog.New(baseHandler))

	if err := ensureDataDir(cfg.DatabaseURL); err != nil {
		return err
	}

	slog.Info("initializing database")
	db, dialect, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()

	slog.Info("running database migrations", "dialect", dialect)
	if err := store.Migrate(db, dialect); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Also write WARN and ERROR logs to the event log table.
	logger := slog.New(logging.NewEventLogHandler(baseHandler, db))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	ctx := context.Background()
	if purgeEvents {
		deleted, err := service.NewEventService(db).DeleteOldEvents(ctx, cfg.EventRetention)
		if err != nil {
			return fmt.Errorf("purging events: %w", err)
		}
		slog.Info("event log purged", "deleted", deleted, "older_than", cfg.EventRetention)
		return nil
	}

	if cfg.SeedAdmin() {
		created, err := store.SeedAdmin(ctx, db, store.SeedAdminParams{
			Email:     service.NormalizeEmail(cfg.AdminEmail),
			Password:  cfg.AdminPassword,
			FirstName: "Admin",
			LastName:  "User",
		})
		if err != nil {
			return fmt.Errorf("seeding admin: %w", err)
		}
		if created {
			slog.Info("bootstrap admin created, registration closed")
		}
	}

	var rdb *redis.Client
	if cfg.UseRedisSessions() {
		rdb, err = session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		slog.Info("using redis session store")
	}

	sessionManager := session.New(session.NewStore(db, dialect, rdb), session.Options{
		Lifetime: cfg.RememberFor,
		IsDev:    cfg.IsDevelopment(),
	})

	var sender mail.Sender
	if cfg.SMTPEnabled() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		slog.Info("smtp delivery enabled", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	} else {
		sender = mail.NewLogSender(logger)
		slog.Warn("SMTP not configured, emails will only be logged")
	}

	mailer, err := mail.NewMailer(sender, mail.MailerConfig{
		From:     cfg.MailFrom(),
		SiteName: "Folio",
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating mailer: %w", err)
	}

	accountService := service.NewAccountService(db, auth.NewResetTokens(cfg.SecretKey), mailer)
	eventService := service.NewEventService(db)

	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}

	renderer, err := render.New(render.Config{
		TemplatesFS:    templatesFS,
		SessionManager: sessionManager,
		SiteName:       "Folio",
		IsDev:          cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}

	loginProtection := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	defer loginProtection.Stop()

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.GetHead)
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))
	r.Use(sessionManager.LoadAndSave)
	r.Use(middleware.LoadUser(sessionManager, accountService))
	r.Use(middleware.SkipCSRF(handler.RouteHealth, handler.RouteHealthLive, handler.RouteHealthReady))
	r.Use(middleware.CSRF(middleware.DefaultCSRFConfig([]byte(cfg.SecretKey), cfg.BaseURL, cfg.IsDevelopment())))

	handler.Routes{
		Auth:            handler.NewAuthHandler(accountService, eventService, renderer, sessionManager, loginProtection, cfg.BaseURL),
		Account:         handler.NewAccountHandler(accountService, eventService, renderer),
		Health:          handler.NewHealthHandler(db, version.Get().Version),
		Events:          eventService,
		LoginProtection: loginProtection,
		RateLimiter:     middleware.NewIPRateLimiter(2, 20),
	}.Register(r)

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", version.Get().Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// ensureDataDir creates the parent directory of a SQLite database file.
func ensureDataDir(databaseURL string) error {
	scheme, path, ok := strings.Cut(databaseURL, "://")
	if !ok || (scheme != "sqlite" && scheme != "sqlite3") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
