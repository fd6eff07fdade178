package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/tsunagu/internal/cli"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"github.com/spf13/cobra"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the notes of a workspace",
	Long: `Search note titles, bodies and tags. A running server also ranks by embedding
similarity in embedding mode; with --server "" only the text index is used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseFormat()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		var results []models.SearchResult
		if serverURL != "" {
			results, err = newAPIClient(serverURL).Search(workspaceID, query, searchK)
		} else {
			results, err = searchLocal(query, searchK)
		}
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return cli.WriteSearch(cmd.OutOrStdout(), query, results, format)
	},
}

func init() {
	addClientFlags(searchCmd)
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 0, "maximum number of results (0 = configured default)")
	rootCmd.AddCommand(searchCmd)
}

// searchLocal builds a text index over the workspace notes in-process.
func searchLocal(query string, k int) ([]models.SearchResult, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	ws, ok := cfg.Workspaces[workspaceID]
	if !ok {
		return nil, failure.Newf(failure.NotFound, "open workspace", "unknown workspace %s", workspaceID)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	repos := map[string]notes.Repository{workspaceID: notes.NewOsDirRepository(ws.NotesDir, ws.Include)}
	engine := search.NewEngine(cfg, repos, nil, search.WithLogger(logger))
	defer engine.Close()
	return engine.Search(context.Background(), workspaceID, query, k)
}
