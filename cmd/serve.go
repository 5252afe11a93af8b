package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/exim-agent/pkg/config"
	"github.com/ekaya-inc/exim-agent/pkg/export"
	"github.com/ekaya-inc/exim-agent/pkg/handlers"
	"github.com/ekaya-inc/exim-agent/pkg/mcp"
	"github.com/ekaya-inc/exim-agent/pkg/mcp/tools"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and MCP server",
		Long: `Start the HTTP API (POST /api/chat, export status and downloads) and the
MCP endpoint at /mcp. Export files and job records are swept on the
configured schedule. SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()

	sweeper := export.NewSweeper(a.store, cfg.Export.Dir, cfg.Export.FileRetention(), cfg.Export.JobTTL(), logger)
	if err := sweeper.Start(cfg.Export.SweepSchedule); err != nil {
		return fmt.Errorf("failed to start export sweeper: %w", err)
	}
	defer sweeper.Stop()

	mcpServer := mcp.NewServer(mcp.Deps{
		Trade: &tools.TradeToolDeps{
			Agent:  a.agent,
			Jobs:   a.exports,
			Logger: logger.Named("mcp"),
		},
		DB:      a.db,
		Version: cfg.Version,
	}, logger)

	router := handlers.NewRouter(logger, mcpServer.Handler(),
		handlers.NewChatHandler(a.agent, logger.Named("chat")),
		handlers.NewExportHandler(a.exports, logger.Named("export")),
		handlers.NewHealthHandler(cfg, a.db, logger),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting exim-agent",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("model", a.completer.Model()),
			zap.String("export_store", cfg.Export.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
