package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projectkasa/kasabot/internal/api"
	"github.com/projectkasa/kasabot/internal/bot"
	"github.com/projectkasa/kasabot/internal/config"
	"github.com/projectkasa/kasabot/internal/database"
	"github.com/projectkasa/kasabot/internal/metrics"
	"github.com/projectkasa/kasabot/internal/prompts"
	"github.com/projectkasa/kasabot/internal/session"
	"github.com/projectkasa/kasabot/internal/storage"
	"github.com/projectkasa/kasabot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting kasabot",
		"variant", cfg.Variant,
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	// Flat-file archive: audio/ and metadata/ under the data directory.
	tag := "std"
	if cfg.Variant == config.VariantClinical {
		tag = "cli"
	}
	archive, err := storage.NewArchive(cfg.DataDir, tag)
	if err != nil {
		slog.Error("failed to prepare data directory", "error", err)
		os.Exit(1)
	}

	// Open the recording index and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open recording index", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	recordings := database.NewRecordingRepository(db)

	// Embedded prompt banks.
	bank, err := prompts.Load()
	if err != nil {
		slog.Error("failed to load prompt banks", "error", err)
		os.Exit(1)
	}

	sessions := session.NewStore()
	client := telegram.NewClient(cfg.BotToken)
	engine := bot.NewEngine(cfg, sessions, bank, archive, recordings, client, client, logger)

	// Metrics registry with the scrape-time collector.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(
		sessions,
		statsAdapter{recordings},
		session.AllStates(),
		time.Now(),
	))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	handler := api.NewServer(cfg, engine, client, recordings, metricsHandler, logger)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Register the webhook with Telegram. Best effort: the operator may
	// have registered it out of band, or the tunnel may not be up yet.
	if url := cfg.WebhookURL(); url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.SetWebhook(ctx, url); err != nil {
			slog.Warn("webhook registration failed, register it manually", "error", err)
		} else {
			slog.Info("webhook registered", "url", url)
		}
		cancel()
	} else {
		slog.Info("no public url configured, skipping webhook registration")
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("kasabot stopped")
}

// statsAdapter exposes the recording repository's aggregate query in the
// shape the metrics collector expects.
type statsAdapter struct {
	repo database.RecordingRepository
}

func (a statsAdapter) Stats(ctx context.Context) (int64, int64, map[string]int64, error) {
	st, err := a.repo.Stats(ctx)
	if err != nil {
		return 0, 0, nil, err
	}
	return st.Total, st.DistinctUsers, st.ByCategory, nil
}
