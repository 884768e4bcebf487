// Package main runs the trading core daemon:
// - Stores: PostgreSQL (or in-memory), optional ClickHouse prices, SQLite journal
// - Monitor (scheduled): mark-to-market and stop-loss/take-profit closes
// - HTTP: /ws event stream, /metrics, /healthz, /status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"papertrade/internal/config"
	"papertrade/internal/notify"
	"papertrade/internal/observability"
	"papertrade/internal/orchestrator"
)

// Server holds all components of the daemon.
type Server struct {
	cfg    *config.Config
	core   *orchestrator.Orchestrator
	hub    *notify.Hub
	logger *zap.Logger

	started time.Time
}

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("PAPERTRADE_CONFIG"), "Path to YAML configuration file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config and POSTGRES_DSN)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for reference prices")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	migrate := flag.Bool("migrate", false, "Apply embedded migrations at startup")

	flag.Parse()

	cfg, err := loadConfig(*configPath, *postgresDSN, *clickhouseDSN, *addr, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := orchestrator.OpenStores(ctx, cfg.Storage, orchestrator.StoreOptions{Migrate: *migrate}, logger)
	if err != nil {
		logger.Fatal("failed to create stores", zap.Error(err))
	}
	defer cleanup()

	hubConfig := notify.DefaultHubConfig()
	if cfg.Server.HubQueueSize > 0 {
		hubConfig.QueueSize = cfg.Server.HubQueueSize
	}
	hub := notify.NewHub(hubConfig, logger.Named("hub"))

	core, err := orchestrator.FromConfig(cfg, stores, hub, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	seeded, err := core.SeedInstruments(ctx, cfg.Instruments)
	if err != nil {
		logger.Fatal("failed to seed instruments", zap.Error(err))
	}
	logger.Info("instruments ready",
		zap.Int("inserted", seeded.Inserted),
		zap.Int("existing", seeded.Existing),
		zap.Int("prices_seeded", seeded.PricesSeeded),
	)

	server := &Server{
		cfg:     cfg,
		core:    core,
		hub:     hub,
		logger:  logger,
		started: time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// loadConfig reads the config file and applies flag overrides on top of it.
func loadConfig(path, postgresDSN, clickhouseDSN, addr string, useMemory bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if postgresDSN != "" {
		cfg.Storage.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = clickhouseDSN
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if useMemory {
		cfg.Storage.UseMemory = true
	}
	return cfg, cfg.Validate()
}

// Run starts the hub, monitor and HTTP server and blocks until ctx ends
// or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server", zap.String("addr", s.cfg.Server.Addr))

	errCh := make(chan error, 2)

	go s.hub.Run(ctx)

	if s.cfg.Monitor.Enabled {
		go func() {
			err := s.core.Monitor.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("monitor: %w", err)
			}
		}()
	} else {
		s.logger.Info("monitor disabled")
	}

	go s.trackUptime(ctx)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown", zap.Error(err))
	}
	return runErr
}

// trackUptime feeds the uptime counter once per second.
func (s *Server) trackUptime(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordUptime(1)
		}
	}
}

// routes builds the HTTP handler for events, health, metrics and status.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Websocket event stream
	mux.Handle("/ws", s.hub)

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	return mux
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	Started        time.Time `json:"started"`
	Storage        string    `json:"storage"`
	PriceSource    string    `json:"price_source"`
	Journal        bool      `json:"journal"`
	MonitorEnabled bool      `json:"monitor_enabled"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	storageKind, priceSource := "postgres", "postgres"
	switch {
	case s.cfg.Storage.UseMemory:
		storageKind, priceSource = "memory", "memory"
	case s.cfg.Storage.ClickHouseDSN != "":
		priceSource = "clickhouse"
	}

	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		Started:        s.started,
		Storage:        storageKind,
		PriceSource:    priceSource,
		Journal:        s.cfg.Storage.JournalPath != "",
		MonitorEnabled: s.cfg.Monitor.Enabled,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
