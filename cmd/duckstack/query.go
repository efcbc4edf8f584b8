package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/query"
)

func newQueryCmd() *cobra.Command {
	var (
		configPath string
		dbPath     string
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL statement against the query database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Query.DBPath
			}

			engine, err := query.New(dbPath, cfg.Query.MaxRows)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			res, err := engine.Query(context.Background(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printTable(os.Stdout, res)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&dbPath, "db", "", "database file (overrides query.db_path)")
	return cmd
}
