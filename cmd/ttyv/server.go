package main

import (
	"context"
	"encoding/json"
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

	"github.com/lmittmann/tint"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/ttyv/internal/api"
	"github.com/kalambet/ttyv/internal/composer"
	"github.com/kalambet/ttyv/internal/config"
	"github.com/kalambet/ttyv/internal/embedcache"
	"github.com/kalambet/ttyv/internal/engine"
	"github.com/kalambet/ttyv/internal/gemini"
	"github.com/kalambet/ttyv/internal/ingest"
	"github.com/kalambet/ttyv/internal/media"
	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/transcript"
	"github.com/kalambet/ttyv/internal/vectorstore"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ttyv server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running ttyv server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ttyv system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "ttyv.pid")
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

func buildEngine(cfg config.Config) (engine.Engine, error) {
	switch cfg.Engine.Provider {
	case "gemini":
		return engine.NewGemini(gemini.New(cfg.Engine.GeminiAPIKey), 0), nil
	case "openai":
		return engine.NewOpenAI(cfg.Engine.OpenAIAPIKey, cfg.Engine.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "ttyv version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      logLevel,
			TimeFormat: "15:04:05",
			NoColor:    noColor,
		}),
	))

	// Refuse to double-start: probe the health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	slog.Info("engine ready", "provider", cfg.Engine.Provider,
		"generate_model", cfg.Engine.GenerateModel, "embed_model", cfg.Engine.EmbedModel)

	cache, err := embedcache.New(cfg.Cache.Capacity, cfg.Engine.EmbedDim)
	if err != nil {
		return fmt.Errorf("building embedding cache: %w", err)
	}
	stores := vectorstore.NewRegistry()

	orchestrator := ingest.New(
		transcript.NewFetcher(),
		&media.YTDLP{},
		eng, cache, stores, db,
		ingest.Config{
			GenerateModel:    cfg.Engine.GenerateModel,
			EmbedModel:       cfg.Engine.EmbedModel,
			ChunkDuration:    cfg.Ingest.ChunkDuration,
			ChunkMaxChars:    cfg.Ingest.ChunkMaxChars,
			FrameInterval:    cfg.Ingest.FrameInterval,
			EmbedConcurrency: cfg.Ingest.EmbedConcurrency,
			MaxRetries:       cfg.Ingest.MaxRetries,
			WorkDir:          cfg.Ingest.WorkDir,
			RequestTimeout:   cfg.Engine.RequestTimeout,
			AnalysisTimeout:  cfg.Engine.AnalysisTimeout,
		},
	)

	comp := composer.New(eng, cache, stores, db, composer.Config{
		GenerateModel:  cfg.Engine.GenerateModel,
		EmbedModel:     cfg.Engine.EmbedModel,
		TopK:           cfg.Retrieval.TopK,
		RequestTimeout: cfg.Engine.RequestTimeout,
	})

	handler := api.NewHandler(api.Deps{
		Processor: orchestrator,
		Composer:  comp,
		Cache:     cache,
		Store:     db,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio so agent clients can drive the same pipeline.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Processor: orchestrator,
		Composer:  comp,
		Store:     db,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "ttyv listening on %s\n", addr)
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
		printError("ttyv is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop ttyv (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to ttyv (PID %d)", pid)
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
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Engine.Provider)
	printStatus("Generate model", "%s", cfg.Engine.GenerateModel)
	printStatus("Embed model", "%s", cfg.Engine.EmbedModel)

	if running {
		if videosResp, err := apiGet(client, serverURL+"/videos", cfg.Server.APIToken); err == nil {
			var videos []json.RawMessage
			if json.NewDecoder(videosResp.Body).Decode(&videos) == nil {
				printStatus("Videos", "%d", len(videos))
			}
			videosResp.Body.Close()
		}
		if statsResp, err := apiGet(client, serverURL+"/cache/stats", cfg.Server.APIToken); err == nil {
			var stats map[string]int
			if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
				printStatus("Cache", "%d/%d entries, %d hits, %d misses",
					stats["size"], stats["capacity"], stats["hits"], stats["misses"])
			}
			statsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}
