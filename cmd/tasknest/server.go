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

	"github.com/tasknest/tasknest/internal/agents"
	"github.com/tasknest/tasknest/internal/api"
	"github.com/tasknest/tasknest/internal/config"
	"github.com/tasknest/tasknest/internal/genai"
	"github.com/tasknest/tasknest/internal/memory"
	"github.com/tasknest/tasknest/internal/ollama"
	"github.com/tasknest/tasknest/internal/proxy"
	"github.com/tasknest/tasknest/internal/storage"
	"github.com/tasknest/tasknest/internal/tasks"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tasknest server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running tasknest server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tasknest system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "tasknest.pid")
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
	fmt.Fprintf(os.Stderr, "tasknest version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("tasknest is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("tasknest is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Semantic indexing is optional: without a reachable Ollama the
	// server runs with indexing and search disabled.
	var indexer *memory.Indexer
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if ollamaClient.IsRunning(ctx) {
		embedder := memory.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
		indexer = memory.NewIndexer(embedder, memory.NewSQLiteStore(store.DB()))
		slog.Info("semantic indexing enabled", "embed_model", cfg.Ollama.EmbedModel)
	} else {
		slog.Warn("ollama not reachable, semantic indexing disabled", "base_url", cfg.Ollama.BaseURL)
	}

	var svcIndexer tasks.Indexer
	if indexer != nil {
		svcIndexer = indexer
	}
	taskSvc := tasks.NewService(store, svcIndexer)

	// AI generation runs against OpenRouter when a key is present. With
	// no key the generator still serves the mock file, if configured.
	var completer genai.Completer
	if cfg.Proxy.OpenRouterAPIKey != "" {
		completer = proxy.NewClientWithBaseURL(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.BaseURL)
	} else {
		slog.Warn("no OpenRouter API key configured, AI generation degraded")
	}
	generator := genai.New(completer, cfg.Proxy.DefaultModel, cfg.Proxy.MockAIFile)

	router := agents.NewRouter(
		map[string]agents.Endpoint{
			agents.ProviderFetchAI:   {BaseURL: cfg.Agents.FetchAI.BaseURL, APIKey: cfg.Agents.FetchAI.APIKey},
			agents.ProviderJanitorAI: {BaseURL: cfg.Agents.JanitorAI.BaseURL, APIKey: cfg.Agents.JanitorAI.APIKey},
			agents.ProviderWordware:  {BaseURL: cfg.Agents.Wordware.BaseURL, APIKey: cfg.Agents.Wordware.APIKey},
			agents.ProviderLetta:     {BaseURL: cfg.Agents.Letta.BaseURL, APIKey: cfg.Agents.Letta.APIKey},
		},
		generator,
		cfg.Agents.FallbackEnabled,
		time.Duration(cfg.Agents.TimeoutSeconds)*time.Second,
	)

	deps := api.Deps{
		Tasks:      taskSvc,
		Store:      store,
		Generator:  generator,
		Agents:     router,
		Token:      cfg.Server.APIToken,
		RateLimit:  cfg.Limits.Requests,
		RateWindow: time.Duration(cfg.Limits.WindowSeconds) * time.Second,
	}
	if indexer != nil {
		deps.Memory = indexer
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(deps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "tasknest listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
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
		printError("tasknest is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop tasknest (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to tasknest (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
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

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	if cfg.Proxy.OpenRouterAPIKey != "" {
		printStatus("AI generation", "openrouter (%s)", cfg.Proxy.DefaultModel)
	} else if cfg.Proxy.MockAIFile != "" {
		printStatus("AI generation", "mock (%s)", cfg.Proxy.MockAIFile)
	} else {
		printStatus("AI generation", "not configured")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
