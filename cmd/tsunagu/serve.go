package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/server"
	"github.com/hyperjump/tsunagu/internal/watcher"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	opts := []server.ServerOption{server.WithSearch(components.Search)}
	if components.Metrics != nil {
		opts = append(opts, server.WithMetricsHandler(components.Metrics.Handler()))
	}

	if cfg.Watch.Enabled {
		roots := make([]watcher.Root, 0, len(cfg.Workspaces))
		for _, id := range workspaceIDs(cfg) {
			ws := cfg.Workspaces[id]
			roots = append(roots, watcher.Root{Workspace: id, Dir: ws.NotesDir, Include: ws.Include})
		}
		orch := components.Orchestrator
		watchSvc := watcher.NewWatcher(roots, func(workspace string) {
			summary, err := orch.TriggerAnalysis(ctx, workspace, models.ModeIncremental)
			switch {
			case failure.Is(err, failure.RunAlreadyInProgress):
				logger.Debug("analysis already running, change skipped", zap.String("workspace", workspace))
			case err != nil:
				logger.Warn("change-triggered analysis failed", zap.String("workspace", workspace), zap.Error(err))
			default:
				logger.Info("change-triggered analysis finished",
					zap.String("workspace", workspace),
					zap.String("run_id", summary.ID),
					zap.String("status", string(summary.Status)))
			}
		}, watcher.WithDebounce(cfg.Watch.Debounce), watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			return err
		}
		defer watchSvc.Stop()
		opts = append(opts, server.WithWatchService(watchSvc))
	}

	srv := server.NewServer(components.Orchestrator, components.Graph, cfg, logger, opts...)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	for _, ws := range workspaceIDs(cfg) {
		components.Orchestrator.Cancel(ws)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
