package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "duckstack",
		Short:   "duckstack: query external JSON APIs as cached tables",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newFetchCmd(),
		newQueryCmd(),
		newSourcesCmd(),
		newCacheCmd(),
		newAuditCmd(),
		newWarmCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads path, falling back to defaults when the file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ensureDir creates the parent directory of a SQLite database file.
func ensureDir(dbPath string) error {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dbPath), 0o755)
}

func addConfigFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVarP(p, "config", "c", config.DefaultConfigPath(), "path to config file")
}
