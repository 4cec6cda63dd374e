package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/helmsman-ai/helmsman/internal/api"
	"github.com/helmsman-ai/helmsman/internal/cloud"
	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/docstore"
	"github.com/helmsman-ai/helmsman/internal/engine"
	"github.com/helmsman-ai/helmsman/internal/events"
	"github.com/helmsman-ai/helmsman/internal/ingest"
	"github.com/helmsman-ai/helmsman/internal/intent"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/registry"
	"github.com/helmsman-ai/helmsman/internal/rerank"
	"github.com/helmsman-ai/helmsman/internal/routing"
	"github.com/helmsman-ai/helmsman/internal/storage"
	"github.com/helmsman-ai/helmsman/internal/task"
	"github.com/helmsman-ai/helmsman/internal/vector"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the helmsman server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running helmsman server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show helmsman system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "helmsman.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "helmsman version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.LoadOrCreateToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint is the source of truth;
	// the PID file only adds the PID to the message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("helmsman is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("helmsman is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check local inference engine readiness and pull missing models.
	eng := engine.NewOllama(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, []string{cfg.Ollama.FastModel, cfg.Ollama.EmbedModel}, os.Stderr); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.UploadDir(), 0o700); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	vectorStore := vector.NewSQLiteStore(store.DB())
	repo := docstore.New(store, vectorStore)
	reg := registry.New(store)

	// Purge documents stranded mid-ingestion by a previous crash.
	if purged, err := repo.VerifyIntegrity(ctx); err != nil {
		slog.Warn("corpus integrity check failed", "error", err)
	} else if purged > 0 {
		slog.Info("purged incomplete documents", "count", purged)
	}

	bus := events.NewBus()
	router := routing.NewRouter(reg, nil, nil, routing.Options{FallbackEnabled: true, Bus: bus})
	classifier := intent.NewClassifier(eng, cfg.Ollama.FastModel)

	backends := map[routing.Provider]task.Backend{
		routing.ProviderLocal: engine.NewBackend(eng),
	}
	if cfg.Cloud.OpenRouterAPIKey != "" {
		backends[routing.ProviderCloud] = cloud.NewClient(cfg.Cloud.OpenRouterAPIKey)
		slog.Info("cloud provider enabled", "default_model", cfg.Cloud.DefaultModel)
	} else {
		slog.Info("no OpenRouter API key, routing is local-only")
	}

	generateTimeout, err := cfg.GenerateTimeout()
	if err != nil {
		return err
	}
	queueTimeout, err := cfg.QueueTaskTimeout()
	if err != nil {
		return err
	}

	orch := task.NewOrchestrator(router, classifier, backends, reg, generateTimeout, bus)
	exec := task.NewRoutedExecutor(router, classifier, backends, reg)
	queue := task.NewQueue(exec, queueTimeout, bus)

	embedder := engine.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	pipeline := ingest.NewPipeline(nil, embedder, repo, bus)
	backlog := ingest.NewBacklog(pipeline)

	rerankTimeout, err := cfg.RerankTimeout()
	if err != nil {
		slog.Warn("invalid rerank timeout, using default 5s", "value", cfg.Rerank.Timeout, "error", err)
		rerankTimeout = 5 * time.Second
	}
	reranker := rerank.New(eng, cfg.Ollama.FastModel, cfg.Rerank.Enabled, rerankTimeout, cfg.Rerank.Threshold, 0)

	metrics.Init()
	go metrics.ObserveBus(ctx, bus)

	handler := api.NewHandler(api.Deps{
		Orchestrator: orch,
		Queue:        queue,
		Router:       router,
		Registry:     reg,
		Repo:         repo,
		Pipeline:     pipeline,
		Backlog:      backlog,
		Embedder:     embedder,
		Reranker:     reranker,
		Bus:          bus,
		Token:        apiToken,
		UploadDir:    cfg.UploadDir(),
		Metrics:      metrics.Handler(),
	})

	// MCP runs on stdio alongside the HTTP server so editor and agent
	// clients can attach to the same process.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Orchestrator: orch,
		Queue:        queue,
		Router:       router,
		Repo:         repo,
		Embedder:     embedder,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "helmsman listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Let in-flight background ingestion finish before closing storage.
	backlog.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("helmsman is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop helmsman (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to helmsman (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Fast model", "%s", cfg.Ollama.FastModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	if cfg.Cloud.OpenRouterAPIKey != "" {
		printStatus("Cloud", "enabled (default %s)", cfg.Cloud.DefaultModel)
	} else {
		printStatus("Cloud", "disabled (no API key)")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
