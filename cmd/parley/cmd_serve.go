package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/parley/internal/config"
	"github.com/user/parley/internal/delivery"
	"github.com/user/parley/internal/dispatch"
	"github.com/user/parley/internal/dispatch/tools"
	"github.com/user/parley/internal/gateway"
	"github.com/user/parley/internal/httpapi"
	"github.com/user/parley/internal/prompt"
	"github.com/user/parley/internal/scheduler"
	"github.com/user/parley/internal/state"
	"github.com/user/parley/internal/telegram"
	"github.com/user/parley/internal/types"
	"github.com/user/parley/pkg/llm"
	"github.com/user/parley/pkg/llm/gemini"
	"github.com/user/parley/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the parley daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "parley.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// newProvider builds the configured model provider.
func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q (run parley setup)", cfg.LLM.Provider)
	}
	llmCfg := &llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	switch cfg.LLM.Provider {
	case "gemini":
		return gemini.New(ctx, llmCfg)
	case "openai", "":
		return openai.New(llmCfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	sessions := state.NewSessionStore(cfg.DataDir)
	conversations := state.NewConversationStore(cfg.DataDir)
	uploads := state.NewUploadStore(cfg.DataDir)
	taskStore := state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json"))

	// LLM provider
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	// Prompt engine
	promptText, err := prompt.LoadPromptFile(cfg.SystemPromptPath)
	if err != nil {
		return fmt.Errorf("load system prompt: %w", err)
	}
	engine, err := prompt.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve, promptText)
	if err != nil {
		return fmt.Errorf("create prompt engine: %w", err)
	}

	// Tool registry
	registry := dispatch.NewRegistry()
	if cfg.Brave.APIKey != "" {
		registry.Register(tools.NewWebSearch(cfg.Brave.APIKey))
	}
	registry.Register(tools.NewReadURL())

	// Gateway and dispatcher
	gw := gateway.New(sessions, int64(cfg.MaxConcurrent))
	agents := dispatch.NewAgentCache(cfg.AgentCacheSize)
	dispatcher := dispatch.New(provider, engine, sessions, conversations, registry, agents, gw.Retry(), cfg.MaxToolRounds)
	gw.Queue.SetProcessor(dispatcher.ProcessRun)

	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("parley started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"max_tool_rounds", cfg.MaxToolRounds,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	// Delivery registry for scheduled task responses
	deliveryReg := delivery.NewRegistry()

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, sessions, conversations, uploads)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")

		deliveryReg.Register("telegram:", adapter.SendTo)
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Helper: synchronously process a task prompt through the gateway.
	processTask := func(sessionKey, taskPrompt string) (string, error) {
		turn := &types.InboundTurn{
			Source:     "task",
			SessionKey: types.SessionKey(sessionKey),
			UserID:     "system",
			Text:       taskPrompt,
		}
		run, err := gw.HandleInbound(ctx, turn)
		if err != nil {
			return "", err
		}
		return run.Wait(ctx)
	}

	// Scheduler
	sched := scheduler.New(taskStore, func(sessionKey types.SessionKey, taskPrompt string) {
		response, err := processTask(string(sessionKey), taskPrompt)
		if err != nil {
			slog.Error("scheduled task failed", "session_key", sessionKey, "error", err)
			return
		}
		if response == "" {
			return
		}
		if err := deliveryReg.Deliver(sessionKey, response); err != nil {
			slog.Error("scheduled delivery failed", "session_key", sessionKey, "error", err)
		}
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()
	slog.Info("scheduler started")

	// Upload sweeper for files a crashed process left behind
	go func() {
		interval := time.Duration(cfg.HTTP.UploadSweepMins) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := uploads.Sweep(interval); err != nil {
					slog.Warn("upload sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("swept stale uploads", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server
	apiServer := httpapi.NewServer(gw, sessions, conversations, uploads,
		httpapi.WithRequestTimeout(time.Duration(cfg.HTTP.RequestTimeout)*time.Second),
		httpapi.WithMaxUploadBytes(int64(cfg.HTTP.MaxUploadMB)<<20),
		httpapi.WithTasks(taskStore, processTask),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server started", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
