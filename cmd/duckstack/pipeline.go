package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/duckstack/duckstack/pkg/audit"
	"github.com/duckstack/duckstack/pkg/cache"
	"github.com/duckstack/duckstack/pkg/catalog"
	"github.com/duckstack/duckstack/pkg/config"
	"github.com/duckstack/duckstack/pkg/fetch"
	"github.com/duckstack/duckstack/pkg/query"
)

// pipeline holds the components shared by the HTTP and MCP front ends.
// catalog, cache and auditor are nil when unavailable or disabled.
type pipeline struct {
	catalog *catalog.Store
	cache   *cache.Cache
	fetcher *fetch.Fetcher
	engine  *query.Engine
	auditor *audit.Logger
	closers []func() error
}

func openPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline, error) {
	p := &pipeline{}

	p.catalog = openCatalog(ctx, cfg, log)
	if p.catalog != nil {
		p.closers = append(p.closers, p.catalog.Close)
	}

	if cfg.Cache.Enabled {
		p.cache = cache.New()
		p.closers = append(p.closers, p.cache.Close)
	}

	p.fetcher = fetch.New(p.cache,
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithLogger(log),
	)

	if err := ensureDir(cfg.Query.DBPath); err != nil {
		p.Close()
		return nil, fmt.Errorf("create query db dir: %w", err)
	}
	engine, err := query.New(cfg.Query.DBPath, cfg.Query.MaxRows)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init query engine: %w", err)
	}
	p.engine = engine
	p.closers = append(p.closers, engine.Close)

	if cfg.Audit.Enabled {
		auditCfg := cfg.Audit
		auditCfg.DBPath = cfg.AuditDBPath()
		if err := ensureDir(auditCfg.DBPath); err != nil {
			p.Close()
			return nil, fmt.Errorf("create fetch log dir: %w", err)
		}
		l, err := audit.New(auditCfg)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("init fetch log: %w", err)
		}
		p.auditor = l
		p.closers = append(p.closers, l.Close)
	}

	return p, nil
}

// Close releases components in reverse order of opening.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// openCatalog opens and seeds the source catalog. The pipeline still runs
// without one; source lookups then report the catalog as unavailable.
func openCatalog(ctx context.Context, cfg *config.Config, log zerolog.Logger) *catalog.Store {
	if err := ensureDir(cfg.DBPath); err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("catalog unavailable")
		return nil
	}
	store, err := catalog.New(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("catalog unavailable")
		return nil
	}
	if err := store.Seed(ctx, cfg.Sources); err != nil {
		log.Error().Err(err).Msg("seed sources from config")
	}
	log.Info().Int("sources", len(cfg.Sources)).Str("path", cfg.DBPath).Msg("catalog ready")
	return store
}

// watchSources re-seeds the catalog whenever the config file changes.
// Sources registered over the API are left in place.
func watchSources(ctx context.Context, path string, store *catalog.Store, log zerolog.Logger) {
	err := config.Watch(ctx, path, log, func(cfg *config.Config) {
		if err := store.Seed(ctx, cfg.Sources); err != nil {
			log.Error().Err(err).Msg("re-seed sources")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("config watch stopped")
	}
}
