package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/Cortex/internal/api"
	"github.com/MikeSquared-Agency/Cortex/internal/broker"
	"github.com/MikeSquared-Agency/Cortex/internal/config"
	"github.com/MikeSquared-Agency/Cortex/internal/feed"
	"github.com/MikeSquared-Agency/Cortex/internal/hermes"
	"github.com/MikeSquared-Agency/Cortex/internal/metrics"
	"github.com/MikeSquared-Agency/Cortex/internal/scoring"
	"github.com/MikeSquared-Agency/Cortex/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hermes (optional)
	var hermesClient hermes.Client
	var natsClient *hermes.NATSClient
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			natsClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	// Ledger persistence
	st, err := openStore(ctx, cfg, natsClient)
	if err != nil {
		logger.Error("failed to open ledger store", "backend", cfg.Ledger.Backend, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("ledger store ready", "backend", cfg.Ledger.Backend)

	// Roster feed (optional)
	var feedClient feed.Client
	if cfg.Feed.URL != "" {
		feedClient = feed.NewHTTPClient(cfg.Feed.URL, cfg.Feed.Token)
	}

	collector := metrics.New(nil)

	// Broker
	b, err := broker.New(cfg, st, hermesClient, feedClient, collector, logger)
	if err != nil {
		logger.Error("failed to build broker", "error", err)
		os.Exit(1)
	}
	b.Start(ctx)
	defer b.Stop()
	logger.Info("broker started", "policy", scoring.PolicyFor(b.Catalog()).Name(), "snapshot_interval", cfg.SnapshotInterval())

	if feedClient != nil {
		loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
		if _, err := b.ReloadRoster(loadCtx); err != nil {
			logger.Warn("initial roster load failed, starting with an empty roster", "error", err)
		}
		loadCancel()
	}

	b.SetupSubscriptions()

	// API server
	router := api.NewRouter(b, cfg.Server.AdminToken, cfg.Server.RateLimit, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(nil),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		reloadCatalog(b, *configPath, logger)
	}

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, cfg *config.Config, nc *hermes.NATSClient) (store.Store, error) {
	switch cfg.Ledger.Backend {
	case "postgres":
		db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	case "kv":
		if nc == nil {
			return nil, fmt.Errorf("kv backend needs a hermes connection")
		}
		return store.NewKVStore(ctx, nc.JetStream(), cfg.Ledger.KVBucket)
	case "none", "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// reloadCatalog re-reads the config file and swaps weights, fallbacks and
// task definitions in place. Server and ledger settings need a restart.
func reloadCatalog(b *broker.Broker, path string, logger *slog.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("config reload failed", "error", err)
		return
	}
	if err := b.ApplyCatalog(cfg); err != nil {
		logger.Error("config reload rejected", "error", err)
		return
	}
	logger.Info("config reloaded", "policy", scoring.PolicyFor(b.Catalog()).Name())
}
