package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/kian/internal/analysis"
	"github.com/kalambet/kian/internal/api"
	"github.com/kalambet/kian/internal/config"
	"github.com/kalambet/kian/internal/lmstudio"
	"github.com/kalambet/kian/internal/prompt"
	"github.com/kalambet/kian/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kian daemon (foreground)",
	Long: `Run the kian daemon in the foreground.

By default the daemon serves the HTTP API on 127.0.0.1. With --mcp it
speaks the Model Context Protocol on stdin/stdout instead, for use as
an MCP server in AI assistants:

  kian serve
  kian serve --mcp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpMode, _ := cmd.Flags().GetBool("mcp")
		return runServe(mcpMode)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "serve MCP over stdio instead of HTTP")
}

func runServe(mcpMode bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// MCP mode owns stdout for the protocol; logs go to stderr either way.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	client := lmstudio.New(lmstudio.Config{
		BaseURL:     cfg.LMStudio.BaseURL,
		Model:       cfg.LMStudio.Model,
		Timeout:     cfg.LMStudio.Timeout(),
		MaxRetries:  cfg.LMStudio.MaxRetries,
		Temperature: cfg.LMStudio.Temperature,
		MaxTokens:   cfg.LMStudio.MaxTokens,
		TopP:        cfg.LMStudio.TopP,
	})

	// LM Studio may come up after us, so an unreachable server is a
	// warning, not a startup failure.
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	check, err := client.CheckConnection(checkCtx)
	cancel()
	switch {
	case err != nil:
		slog.Warn("LM Studio is not reachable, analyses will fail until it is up",
			"base_url", cfg.LMStudio.BaseURL, "error", err)
	case len(check.Models) == 0:
		slog.Warn("LM Studio has no model loaded", "base_url", cfg.LMStudio.BaseURL)
	case check.ResolvedModel != client.Model():
		slog.Info("adopting served model", "configured", cfg.LMStudio.Model, "model", check.ResolvedModel)
		client.SetModel(check.ResolvedModel)
	default:
		slog.Info("LM Studio connected", "model", check.ResolvedModel, "models", len(check.Models))
	}

	registry := prompt.NewRegistry()
	engine := analysis.New(client, store, registry, slog.Default())

	if mcpMode {
		return serveMCP(ctx, api.MCPDeps{
			Engine:   engine,
			Store:    store,
			Registry: registry,
		})
	}

	handler := api.NewHandler(api.Deps{
		Engine:   engine,
		Store:    store,
		Client:   client,
		Registry: registry,
		Token:    cfg.Server.Token,
		Logger:   slog.Default(),
	})
	if cfg.Server.Token == "" {
		slog.Info("no API token configured, serving without auth")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("kian listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveMCP(ctx context.Context, deps api.MCPDeps) error {
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	slog.Info("MCP server listening on stdio")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}
