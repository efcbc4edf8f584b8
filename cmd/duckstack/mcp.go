package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/config"
	"github.com/duckstack/duckstack/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve sources as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			log := config.NewLogger(cfg.Logging)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := openPipeline(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer p.Close()

			deps := mcp.Deps{
				Fetcher: p.fetcher,
				Engine:  p.engine,
				Cache:   p.cache,
				Audit:   p.auditor,
				Logger:  log,
				Version: version,
			}
			if p.catalog != nil {
				deps.Catalog = p.catalog
			}
			return mcp.New(deps).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
