package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/hyperjump/tsunagu/internal/cli"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var incremental bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run an analysis over a workspace",
	Long: `Run a full analysis (default) or an incremental one with --incremental.
By default the run is executed by the server at --server; pass --server "" to run it in-process.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	addClientFlags(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&incremental, "incremental", false, "only process notes changed since the last successful run")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format, err := parseFormat()
	if err != nil {
		return err
	}
	mode := models.ModeFull
	if incremental {
		mode = models.ModeIncremental
	}

	if serverURL != "" {
		summary, err := newAPIClient(serverURL).TriggerAnalysis(workspaceID, mode)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return cli.WriteRunSummary(cmd.OutOrStdout(), summary, format)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	summary, runErr := components.Orchestrator.TriggerAnalysis(ctx, workspaceID, mode)
	if summary != nil {
		if err := cli.WriteRunSummary(cmd.OutOrStdout(), summary, format); err != nil {
			return err
		}
	}
	if runErr != nil {
		logger.Error("analysis failed", zap.String("workspace", workspaceID), zap.Error(runErr))
		return fmt.Errorf("analysis failed: %w", runErr)
	}
	return nil
}
