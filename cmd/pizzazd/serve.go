package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pizzaz/pizzazd/pkg/admin"
	"github.com/pizzaz/pizzazd/pkg/augment"
	"github.com/pizzaz/pizzazd/pkg/config"
	"github.com/pizzaz/pizzazd/pkg/logging"
	"github.com/pizzaz/pizzazd/pkg/mcp"
	"github.com/pizzaz/pizzazd/pkg/ratelimit"
	"github.com/pizzaz/pizzazd/pkg/widget"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pizzazd HTTP server",
	Long: `Start the pizzazd HTTP server.

Serves the MCP endpoint on /mcp, widget registry diagnostics on
/internal/widgets/status, and (when a refresh token is configured)
manifest hot-reload on /internal/widgets/refresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
	})

	registry := widget.NewRegistry(cfg.ManifestPath, log)
	registry.Bootstrap()

	mcpCfg := mcp.DefaultConfig()
	if err := mcpCfg.Validate(); err != nil {
		return fmt.Errorf("invalid MCP config: %w", err)
	}
	mcpServer := mcp.NewServer(mcpCfg, registry, log)
	defer mcpServer.Close()

	limiter := ratelimit.NewFixedWindow(cfg.RateLimit(log))
	adminAPI := admin.New(registry, limiter, cfg.RefreshToken, log)
	adminAPI.OnReload(mcpServer.NotifyWidgetsReloaded)

	mux := http.NewServeMux()
	mux.Handle(mcpCfg.Path, augment.Middleware(registry, log)(mcpServer.Handler()))
	adminAPI.Register(mux)

	server := &http.Server{
		Addr:    cfg.Address(),
		Handler: mux,
		// No WriteTimeout: SSE notification streams stay open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("pizzazd listening",
			"addr", cfg.Address(),
			"mcp_path", mcpCfg.Path,
			"manifest", cfg.ManifestPath,
			"refresh_enabled", cfg.RefreshToken != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
