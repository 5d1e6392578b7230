// Package main provides the CLI entry point for the agentrunner ReAct agent
// service: a session-addressable streaming runtime that plans, executes,
// and recovers multi-step tasks against a sandboxed workspace.
//
// # Basic Usage
//
// Start the server:
//
//	agentrunner serve --config agentrunner.yaml
//
// # Environment Variables
//
//   - AGENTRUNNER_CONFIG: Path to configuration file (default: agentrunner.yaml)
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: LLM provider credentials
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/cron"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/session"
	"github.com/haasonsaas/nexus/internal/tools/websearch"
	"github.com/haasonsaas/nexus/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentrunner",
		Short:        "agentrunner - a streaming ReAct agent service",
		Long:         `agentrunner runs a single-session ReAct agent behind a websocket, planning and executing multi-step tasks against a sandboxed workspace.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentrunner websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "agentrunner.yaml", "Path to configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	path := configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("configuration loaded",
		"listen_addr", cfg.ListenAddr,
		"llm_provider", cfg.LLM.Provider,
		"tools_profile", cfg.Tools.Profile,
	)

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	manager, err := session.NewManager(cfg.SessionsRoot, cfg.ContextAutosave, cfg.SandboxImage, cfg.SandboxMountPath, cfg.AutoCleanup)
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	if err := manager.StartWatching(ctx); err != nil {
		slog.Warn("session directory watcher unavailable, out-of-band removal will not be detected", "error", err)
	}
	defer manager.StopWatching()

	if cfg.SessionStoreBackend == "sqlite" {
		dbPath := cfg.SessionStorePath
		if dbPath == "" {
			dbPath = filepath.Join(cfg.SessionsRoot, "sessions.db")
		}
		if err := manager.EnableSQLiteIndex(dbPath); err != nil {
			return fmt.Errorf("enable sqlite session index: %w", err)
		}
		slog.Info("session store backend: sqlite", "path", dbPath)
	}

	metrics := observability.NewMetrics()
	manager.SetMetrics(metrics)

	// NewTracer sets the global TracerProvider; every agent.Engine picks it up
	// via otel.Tracer without needing the *Tracer value itself.
	_, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "agentrunner",
		Endpoint:    cfg.OTelExporterEndpoint,
	})
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	var searchCfg *websearch.Config
	if cfg.WebSearch.Backend != "" {
		searchCfg = &websearch.Config{
			SearXNGURL:     cfg.WebSearch.SearXNGURL,
			BraveAPIKey:    cfg.WebSearch.BraveAPIKey,
			DefaultBackend: websearch.SearchBackend(cfg.WebSearch.Backend),
			ExtractContent: true,
		}
	}
	// websearch is only wired when a backend is configured; without one,
	// web_search stays unregistered and web_fetch still works standalone.

	tools := newToolsBuilder(*cfg, searchCfg)

	engineConfig := agentEngineConfig(*cfg)

	server := transport.NewServer(manager, tools.build, provider, cfg.LLM.Model, engineConfig, slog.Default())
	server.SetMetrics(metrics)
	mux := transport.NewMux(server)

	scheduler, err := cron.NewScheduler(cfg.Cron,
		cron.WithLogger(slog.Default()),
		cron.WithCustomHandler(sessionTTLSweepHandler, sessionTTLSweep(manager, cfg.SessionIdleTTL(), slog.Default())),
	)
	if err != nil {
		return fmt.Errorf("create cron scheduler: %w", err)
	}
	if _, err := scheduler.RegisterJob(config.CronJobConfig{
		ID:      sessionTTLSweepHandler,
		Name:    "session idle TTL sweep",
		Type:    "custom",
		Enabled: true,
		Schedule: config.CronScheduleConfig{
			Every: cfg.SessionIdleTTL() / 4,
		},
		Custom: &config.CronCustomConfig{Handler: sessionTTLSweepHandler},
	}); err != nil {
		return fmt.Errorf("register session ttl sweep job: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}
	defer func() { _ = scheduler.Stop(context.Background()) }()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("agentrunner listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.ListenAddr {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: transport.NewMetricsMux(),
		}
		go func() {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("shutdown signal received, initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	slog.Info("agentrunner stopped gracefully")
	return nil
}

func agentEngineConfig(cfg config.Config) agent.EngineConfig {
	return agent.EngineConfig{
		MaxIterations:      cfg.MaxIterations,
		LLMCallTimeout:     cfg.LLMCallTimeout(),
		ToolCallTimeout:    cfg.ToolCallTimeout(),
		LoopWarnThreshold:  cfg.LoopDetectionWarnThreshold,
		LoopAbortThreshold: cfg.LoopDetectionAbortThreshold,
		RecoveryMaxRetries: cfg.RecoveryMaxRetries,
	}
}
