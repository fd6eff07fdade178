package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/cli"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/graphview"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/storage"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the relationship graph of a workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseFormat()
		if err != nil {
			return err
		}
		var view *models.GraphView
		if serverURL != "" {
			view, err = newAPIClient(serverURL).GetGraph(workspaceID)
		} else {
			err = withLocalGraph(func(ctx context.Context, g *graphview.Assembler) error {
				var readErr error
				view, readErr = g.GetGraph(ctx, workspaceID)
				return readErr
			})
		}
		if err != nil {
			return fmt.Errorf("read graph: %w", err)
		}
		return cli.WriteGraph(cmd.OutOrStdout(), view, format)
	},
}

var relatedK int

var relatedCmd = &cobra.Command{
	Use:   "related <note-id>",
	Short: "List the notes related to a note, strongest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseFormat()
		if err != nil {
			return err
		}
		noteID := args[0]
		var related []models.RelatedNote
		if serverURL != "" {
			related, err = newAPIClient(serverURL).GetRelated(workspaceID, noteID, relatedK)
		} else {
			err = withLocalGraph(func(ctx context.Context, g *graphview.Assembler) error {
				var readErr error
				related, readErr = g.GetRelated(ctx, workspaceID, noteID, relatedK)
				return readErr
			})
		}
		if err != nil {
			return fmt.Errorf("read related notes: %w", err)
		}
		return cli.WriteRelated(cmd.OutOrStdout(), noteID, related, format)
	},
}

func init() {
	addClientFlags(graphCmd)
	addClientFlags(relatedCmd)
	relatedCmd.Flags().IntVarP(&relatedK, "k", "k", 10, "maximum number of related notes (0 = all)")
	rootCmd.AddCommand(graphCmd, relatedCmd)
}

// withLocalGraph opens the configured store in-process for read commands.
func withLocalGraph(fn func(ctx context.Context, g *graphview.Assembler) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if _, ok := cfg.Workspaces[workspaceID]; !ok {
		return failure.Newf(failure.NotFound, "open workspace", "unknown workspace %s", workspaceID)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	return fn(ctx, graphview.New(store))
}
