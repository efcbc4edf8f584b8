package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/catalog"
	"github.com/duckstack/duckstack/pkg/config"
	"github.com/duckstack/duckstack/pkg/fetch"
	"github.com/duckstack/duckstack/pkg/models"
	"github.com/duckstack/duckstack/pkg/query"
)

func newFetchCmd() *cobra.Command {
	var (
		configPath string
		params     []string
		sqlText    string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <source>",
		Short: "Fetch a source once and print it as a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			runtime, err := parseParams(params)
			if err != nil {
				return err
			}

			ctx := context.Background()
			src, err := resolveSource(ctx, cfg, args[0])
			if err != nil {
				return err
			}

			f := fetch.New(nil,
				fetch.WithTimeout(cfg.Fetch.Timeout),
				fetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
				fetch.WithUserAgent(cfg.Fetch.UserAgent),
			)
			res, err := f.Fetch(ctx, src, runtime)
			if err != nil {
				return err
			}

			table := res.Table
			if sqlText != "" {
				engine, err := query.New("", cfg.Query.MaxRows)
				if err != nil {
					return err
				}
				defer func() { _ = engine.Close() }()

				table, err = engine.Filter(ctx, src.Name, res.Table, sqlText)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return printJSON(os.Stdout, models.NewSourceQueryResponse(src.Name, table, false))
			}
			return printTable(os.Stdout, table)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "runtime query parameter key=value (repeatable)")
	cmd.Flags().StringVar(&sqlText, "sql", "", "SQL post-filter; the source is exposed as a table named after it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// resolveSource looks name up in the config first, then in the catalog
// database.
func resolveSource(ctx context.Context, cfg *config.Config, name string) (*models.SourceDefinition, error) {
	for i := range cfg.Sources {
		if cfg.Sources[i].Name == name {
			return &cfg.Sources[i], nil
		}
	}

	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("unknown source %q", name)
	}
	store, err := catalog.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	src, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", name, err)
	}
	return src, nil
}
