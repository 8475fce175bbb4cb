// streamd is the trading journal's real-time stream server. It terminates
// WebSocket connections, authenticates them against the journal's session
// tokens, and fans out trade, price, pattern, and currency events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/shivam2014/trading-journal-stream/internal/auth"
	"github.com/shivam2014/trading-journal-stream/internal/broadcast"
	"github.com/shivam2014/trading-journal-stream/internal/config"
	"github.com/shivam2014/trading-journal-stream/internal/database"
	"github.com/shivam2014/trading-journal-stream/internal/model"
	"github.com/shivam2014/trading-journal-stream/internal/protocol"
	"github.com/shivam2014/trading-journal-stream/internal/registry"
	"github.com/shivam2014/trading-journal-stream/internal/server"
	"github.com/shivam2014/trading-journal-stream/internal/store"
	"github.com/shivam2014/trading-journal-stream/internal/version"
)

func main() {
	// Local development reads secrets from .env; deployments set real
	// environment variables and the load is a no-op.
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/streamd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"address", cfg.Server.Address,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Stores
	users := store.NewPGUserStore(pool)
	trades := store.NewPGTradeStore(pool)

	// Connection registry and fan-out
	reg := registry.New(registry.Config{PingInterval: cfg.WebSocket.PingInterval}, logger)
	bc := broadcast.New(reg, logger)
	hub := server.NewHub(bc, cfg.Batch, logger)

	// Authentication
	authn := auth.NewAuthenticator(auth.NewVerifier(cfg.Auth.JWTSecret), users)

	// Inbound dispatch and WebSocket endpoint
	disp := server.NewDispatcher(ctx, trades, bc, cfg.WebSocket.SnapshotLimit, logger)
	srv := server.NewServer(*cfg, authn, reg, disp, logger)

	// Out-of-band change detection: trades mutated through the journal's
	// REST surface still reach subscribed sockets.
	poller := store.NewChangePoller(store.PollerConfig{
		Interval: cfg.Poller.Interval,
		Lookback: cfg.Poller.Lookback,
	}, trades, func(tr model.Trade) {
		hub.PublishTradeChange(protocol.ActionUpdate, tr)
	}, logger)

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, pool, reg, hub, logger),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start components
	reg.Start(ctx)
	poller.Start(ctx)
	errc := srv.Start()

	logger.Info("streamd running",
		"instance_id", cfg.Instance.ID,
		"ws_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Server.Address),
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown or a fatal listener error
	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			logger.Error("server error", "error", err)
		}
		cancel()
	}

	logger.Info("shutting down...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	poller.Stop()
	hub.Stop()
	reg.Stop()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("streamd stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, pool *pgxpool.Pool, reg *registry.Registry, hub *server.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Connection registry
		regStats := reg.Stats()
		health.Components["registry"] = map[string]interface{}{
			"connections":   regStats.Connections,
			"subscriptions": regStats.Subscriptions,
			"sweeps_reaped": regStats.SweepsReaped,
		}

		// Hub
		hubStats := hub.Stats()
		health.Components["hub"] = map[string]interface{}{
			"published":       hubStats.Published,
			"pattern_flushes": hubStats.Patterns.Flushes,
			"price_flushes":   hubStats.Prices.Flushes,
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
