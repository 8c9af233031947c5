// Conclave orchestrator server — receives source events, opens
// deliberation sessions and drives them through the phase machine.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/conclave-hq/conclave/pkg/api"
	"github.com/conclave-hq/conclave/pkg/bus"
	"github.com/conclave-hq/conclave/pkg/config"
	"github.com/conclave-hq/conclave/pkg/escalation"
	"github.com/conclave-hq/conclave/pkg/events"
	"github.com/conclave-hq/conclave/pkg/orchestrator"
	"github.com/conclave-hq/conclave/pkg/registry"
	"github.com/conclave-hq/conclave/pkg/routing"
	"github.com/conclave-hq/conclave/pkg/slack"
	"github.com/conclave-hq/conclave/pkg/spawner"
	"github.com/conclave-hq/conclave/pkg/store"
	"github.com/conclave-hq/conclave/pkg/store/memstore"
	"github.com/conclave-hq/conclave/pkg/store/sqlstore"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses a duration env var, falling back on absence or
// parse failure.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default",
			"key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

// configureLogging installs the process-wide slog handler.
// LOG_LEVEL accepts debug, info, warn and error.
func configureLogging() {
	level := slog.LevelInfo
	raw := getEnv("LOG_LEVEL", "info")
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		slog.Warn("Invalid LOG_LEVEL, using info", "value", raw)
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("CONCLAVE_CONFIG", "./council.yaml"),
		"Path to the council configuration file")
	flag.Parse()

	// Load .env file from the config file's directory
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	configureLogging()

	listenAddr := getEnv("CONCLAVE_LISTEN_ADDR", ":8080")

	slog.Info("Starting Conclave",
		"listen_addr", listenAddr,
		"config", *configPath)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the session store
	var st store.Interface
	if dsn := os.Getenv("CONCLAVE_DATABASE_URL"); dsn != "" {
		sqlStore, err := sqlstore.Open(ctx, sqlstore.Config{DSN: dsn})
		if err != nil {
			slog.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		st = sqlStore
		slog.Info("Connected to database")
	} else {
		st = memstore.New()
		slog.Warn("CONCLAVE_DATABASE_URL not set, sessions are held in memory only")
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()

	// 3. Build the agent registry and restore persistent credentials
	reg := registry.New(cfg.Council.Agents)
	tokens, err := st.ListAgentTokens(ctx)
	if err != nil {
		slog.Error("Failed to load persisted agent tokens", "error", err)
		os.Exit(1)
	}
	for agentID, token := range tokens {
		if err := reg.SetPersistentToken(agentID, token); err != nil {
			// Token for an agent no longer on the roster; a fresh one is
			// minted when the agent is next spawned.
			slog.Warn("Skipping persisted token", "agent_id", agentID, "error", err)
		}
	}
	if len(tokens) > 0 {
		slog.Info("Restored persistent agent tokens", "count", len(tokens))
	}

	// 4. Message bus and event routing
	msgBus := bus.New(cfg.Council.CommunicationGraph)
	router := routing.New(cfg.Council.EventRouting)

	// 5. Agent spawner. Lifecycle events are handed to the orchestrator,
	// which does not exist yet; the closure late-binds it.
	var orch *orchestrator.Orchestrator
	spawn, err := spawner.New(cfg.Council.Spawner, func(event spawner.LifecycleEvent) {
		if orch != nil {
			orch.HandleLifecycle(event)
		}
	})
	if err != nil {
		slog.Error("Failed to initialize spawner", "error", err)
		os.Exit(1)
	}

	// 6. Streaming infrastructure
	hub := events.NewHub()
	connManager := events.NewConnectionManager(hub, 10*time.Second)
	unsubscribe := hub.Subscribe(connManager.Broadcast)
	defer unsubscribe()

	// 7. Orchestrator
	orch, err = orchestrator.New(cfg.Council, orchestrator.Deps{
		Store:    st,
		Registry: reg,
		Bus:      msgBus,
		Router:   router,
		Spawner:  spawn,
		Events:   events.NewPublisher(hub),
		MCPURL:   os.Getenv("CONCLAVE_MCP_URL"),
	})
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}
	slog.Info("Orchestrator initialized", "council", cfg.Council.ID)

	// 8. Escalation monitor (background ticker)
	monitor := escalation.NewMonitor(
		orch.Engine(),
		orch.EscalationSnapshots,
		getEnvDuration("CONCLAVE_ESCALATION_INTERVAL", time.Second),
	)
	monitor.OnFired = orch.AnnounceEscalations
	monitor.Start(ctx)
	slog.Info("Escalation monitor started")

	// 9. Slack announcer (optional, requires token and channel)
	slackSvc := slack.NewService(slack.ServiceConfig{
		Token:        os.Getenv("SLACK_BOT_TOKEN"),
		Channel:      os.Getenv("SLACK_CHANNEL_ID"),
		DashboardURL: os.Getenv("CONCLAVE_DASHBOARD_URL"),
	})
	if slackSvc != nil {
		slackSvc.Start(hub)
		slog.Info("Slack announcer started", "channel", os.Getenv("SLACK_CHANNEL_ID"))
	}

	// 10. HTTP server (non-blocking)
	srv := api.NewServer(api.Config{
		Orchestrator: orch,
		Registry:     reg,
		Store:        st,
		ConnManager:  connManager,
		ConfigPath:   *configPath,
	})
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Conclave started successfully",
		"council", cfg.Council.ID,
		"agents", len(cfg.Council.Agents))

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown
	monitor.Stop()
	slackSvc.Stop()
	connManager.CloseAll()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
