package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/tsunagu/internal/cli"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tsunagu/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

var (
	configPath   string
	debugFlag    bool
	serverURL    string
	outputFormat string
	workspaceID  string
)

var rootCmd = &cobra.Command{
	Use:   "tsunagu",
	Short: "Discover and maintain relationships between notes",
	Long: `tsunagu analyzes a notes directory, scores note pairs by shared terms or
embedding similarity, and keeps a bounded relationship graph per workspace.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// addClientFlags registers the flags shared by commands that can talk to a running server.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, `server URL (use --server "" for direct storage access)`)
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", config.DefaultWorkspace, "workspace ID")
}

// loadConfig loads config from path. When path is the default and a config.yaml exists
// in the working directory, that file is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func parseFormat() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(outputFormat)
}
