package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	notifyadapter "github.com/quotawatch/quotawatch/internal/adapter/driven/notify"
	provideradapter "github.com/quotawatch/quotawatch/internal/adapter/driven/provider"
	sqliteadapter "github.com/quotawatch/quotawatch/internal/adapter/driven/sqlite"
	httphandler "github.com/quotawatch/quotawatch/internal/adapter/driving/http"
	"github.com/quotawatch/quotawatch/internal/application"
	"github.com/quotawatch/quotawatch/internal/config"
	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
	"github.com/quotawatch/quotawatch/internal/telemetry"
	"github.com/quotawatch/quotawatch/internal/vault"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load .env (optional) and configuration. Fails fast on a
	// missing or malformed master key.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"check_interval", cfg.CheckInterval,
		"workers", cfg.WorkerCount,
	)

	// 2. Signal-based shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Vault over the decoded master key.
	v, err := vault.New(cfg.MasterKey)
	if err != nil {
		return err
	}

	// 4. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// 5. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	providerStore := sqliteadapter.NewProviderRepo(db)
	historyStore := sqliteadapter.NewHistoryRepo(db)
	ruleStore := sqliteadapter.NewRuleRepo(db)

	// 6. Adapter registry, verified against the seeded provider table
	// so an unhandled slug aborts the boot, not a scheduled check.
	registry := provideradapter.NewRegistry()
	if err := registry.VerifyAll(ctx, providerStore); err != nil {
		return err
	}

	// 7. Notification channels. Email stays unwired until SMTP is
	// configured; rules targeting it fail dispatch and are logged.
	senders := map[model.Channel]driven.NotificationSender{
		model.ChannelWebhook: notifyadapter.NewWebhookSender(cfg.CheckTimeout),
	}
	if cfg.SMTP.Host != "" {
		senders[model.ChannelEmail] = notifyadapter.NewSMTPSender(notifyadapter.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		slog.Info("email notifications enabled", "smtp_host", cfg.SMTP.Host)
	}

	metrics := telemetry.NewMetrics()
	notifySvc := application.NewNotifyService(historyStore, ruleStore, senders, metrics)

	// 8. Check scheduler and worker pool.
	checkSvc := application.NewCheckService(
		credentialStore,
		providerStore,
		historyStore,
		registry,
		v,
		notifySvc,
		metrics,
		application.CheckConfig{
			Interval:        cfg.CheckInterval,
			Workers:         cfg.WorkerCount,
			MaxRetries:      cfg.MaxRetries,
			BackoffInitial:  cfg.RetryBackoffInitial,
			BackoffMax:      cfg.RetryBackoffMax,
			ProviderSpacing: cfg.ProviderSpacing,
			CheckTimeout:    cfg.CheckTimeout,
			ShutdownGrace:   cfg.ShutdownGrace,
		},
	)
	go checkSvc.Start(ctx)

	// 9. History retention pruner.
	retentionSvc := application.NewRetentionService(historyStore, cfg.PruneSchedule, cfg.RetentionDays, metrics)
	if err := retentionSvc.Start(ctx); err != nil {
		return err
	}

	// 10. HTTP server.
	apiHandler := httphandler.NewHandler(credentialStore, historyStore, checkSvc, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, metrics, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("quotawatch started",
		"listen_addr", cfg.ListenAddr,
		"check_interval", cfg.CheckInterval,
	)

	// 11. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
