package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/willemschots/webauth/assets"
	"github.com/willemschots/webauth/internal"
	"github.com/willemschots/webauth/internal/auth"
	authdb "github.com/willemschots/webauth/internal/auth/db"
	"github.com/willemschots/webauth/internal/db"
	"github.com/willemschots/webauth/internal/db/migrate"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/email/mailgun"
	"github.com/willemschots/webauth/internal/email/postmark"
	"github.com/willemschots/webauth/internal/email/view"
	"github.com/willemschots/webauth/internal/jwt"
	"github.com/willemschots/webauth/internal/krypto"
	"github.com/willemschots/webauth/internal/ratelimit"
	"github.com/willemschots/webauth/internal/web"
	"github.com/willemschots/webauth/migrations"
	"golang.org/x/sync/errgroup"
)

const (
	emailClientTimeout = 10 * time.Second
	redisKeyPrefix     = "webauth:ratelimit:"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	logger = newLogger(w, cfg.log)

	readDB, err := db.OpenSQLite(cfg.db.file, false)
	if err != nil {
		logger.Error("failed to open read db", "error", err)
		return 1
	}
	defer readDB.Close()

	writeDB, err := db.OpenSQLite(cfg.db.file, true)
	if err != nil {
		logger.Error("failed to open write db", "error", err)
		return 1
	}
	defer writeDB.Close()

	if cfg.db.migrate {
		logger.Info("attempting to migrate database", "file", cfg.db.file)

		ms, err := migrate.RunFS(ctx, writeDB, migrations.FS, migrate.Metadata{
			AppVersion: internal.BuildInfo.AppVersion(),
			Timestamp:  time.Now(),
		})
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}

		for _, m := range ms {
			logger.Info("migration applied", "version", m.Version, "filename", m.Filename)
		}
	}

	encryptor, err := krypto.NewEncryptor(cfg.db.encryptionKeys)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		return 1
	}

	store := authdb.New(readDB, writeDB, encryptor, nil)

	emailSvc, err := newEmailService(cfg.email, logger)
	if err != nil {
		logger.Error("failed to create email service", "error", err)
		return 1
	}

	signer := jwt.NewSigner(cfg.jwt.signingKey, cfg.jwt.signer)

	authSvc, err := auth.NewService(store, emailSvc, signer, logger, cfg.auth)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg.rateLimit, logger)
	if err != nil {
		logger.Error("failed to create rate limiter", "error", err)
		return 1
	}
	defer closeLimiter()

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: web.NewServer(&web.ServerDeps{
			Logger:      logger,
			AuthService: authSvc,
			Limiter:     limiter,
			Verifier:    signer,
		}, cfg.http.server),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"build", internal.BuildInfo,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

func newLogger(w io.Writer, cfg logConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.level,
	}

	if cfg.format == logFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func newEmailService(cfg emailConfig, logger *slog.Logger) (*email.Service, error) {
	renderer := view.NewFSRenderer(assets.EmailFS)
	err := renderer.Preload(email.TemplateVerifyEmail, email.TemplatePasswordReset)
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}

	var sender email.Sender
	client := &http.Client{Timeout: emailClientTimeout}

	switch cfg.transport {
	case transportPostmark:
		sender = postmark.NewSender(client, cfg.postmark)
	case transportMailgun:
		sender = mailgun.NewSender(client, cfg.mailgun)
	default:
		logger.Warn("emails are logged instead of sent, do not use in production")
		sender = email.NewLogSender(logger)
	}

	return email.NewService(renderer, sender, cfg.service), nil
}

// newLimiter creates the rate limiter. The returned func releases its resources.
func newLimiter(ctx context.Context, cfg rateLimitConfig, logger *slog.Logger) (*ratelimit.Limiter, func(), error) {
	if cfg.redisAddr == "" {
		logger.Info("using in-process rate limit buckets")
		l, err := ratelimit.NewMemory(ratelimit.DefaultConfigs())
		return l, func() {}, err
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.redisAddr,
	})
	closeFunc := func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		closeFunc()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.redisAddr, err)
	}

	logger.Info("using redis rate limit buckets", "addr", cfg.redisAddr)
	l, err := ratelimit.NewRedis(client, redisKeyPrefix, ratelimit.DefaultConfigs())
	if err != nil {
		closeFunc()
		return nil, nil, err
	}

	return l, closeFunc, nil
}
