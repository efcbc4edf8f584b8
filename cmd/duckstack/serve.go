package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/config"
	"github.com/duckstack/duckstack/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the duckstack HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			log := config.NewLogger(cfg.Logging)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := openPipeline(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer p.Close()

			deps := server.Deps{
				Fetcher: p.fetcher,
				Cache:   p.cache,
				Engine:  p.engine,
				Audit:   p.auditor,
				Logger:  log,
			}
			if p.catalog != nil {
				deps.Catalog = p.catalog
				if _, err := os.Stat(configPath); err == nil {
					go watchSources(ctx, configPath, p.catalog, log)
				}
			}

			srv := server.New(cfg.Listen, deps)
			log.Info().
				Str("config", configPath).
				Bool("cache", cfg.Cache.Enabled).
				Bool("fetch_log", cfg.Audit.Enabled).
				Msg("starting duckstack")
			return srv.ListenAndServe(ctx)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	return cmd
}
