// Topicforge server: provides the topic intake HTTP API, runs the
// background worker pool, and generates content artifacts on demand.
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

	"github.com/topicforge/topicforge/pkg/api"
	"github.com/topicforge/topicforge/pkg/config"
	"github.com/topicforge/topicforge/pkg/llm"
	"github.com/topicforge/topicforge/pkg/processor"
	"github.com/topicforge/topicforge/pkg/queue"
	"github.com/topicforge/topicforge/pkg/services"
	"github.com/topicforge/topicforge/pkg/store"
)

// Exit codes. 2 is reserved for missing LLM credentials so operators can
// tell a secrets problem from a generic boot failure.
const (
	exitOK          = 0
	exitInitFailure = 1
	exitNoLLMKeys   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return exitInitFailure
	}

	if len(cfg.LLM.APIKeys) == 0 {
		slog.Error("No LLM API keys configured, set LLM_API_KEYS")
		return exitNoLLMKeys
	}

	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		slog.Error("Failed to open store", "error", err, "path", cfg.Store.Path)
		return exitInitFailure
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()
	slog.Info("Store opened", "path", cfg.Store.Path, "legacy_schema", st.Legacy())

	llmClient, err := llm.NewClient(llm.Config{
		APIKeys:     cfg.LLM.APIKeys,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		KeyCooldown: cfg.LLM.KeyCooldown,
	})
	if err != nil {
		slog.Error("Failed to create LLM client", "error", err)
		return exitInitFailure
	}

	proc := processor.New(llmClient)
	pool := queue.NewWorkerPool(st, proc, cfg.Queue)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		return exitInitFailure
	}

	intake := services.NewIntakeService(st)
	generator := services.NewGeneratorService(st, llmClient)

	server := api.NewServer(st, intake, generator, pool)
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		serverErr <- server.Start(":" + cfg.HTTPPort)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			pool.Stop()
			return exitInitFailure
		}
	}

	// Stop intake first so no new work lands mid-drain, then let in-flight
	// batches finish (bounded by the pool's drain timeout).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	pool.Stop()
	slog.Info("Shutdown complete")
	return exitOK
}
