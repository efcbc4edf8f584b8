package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/duckstack/duckstack/pkg/catalog"
	"github.com/duckstack/duckstack/pkg/models"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"duckstack_list_sources": handleListSources,
	"duckstack_query_source": handleQuerySource,
	"duckstack_sql":          handleSQL,
	"duckstack_cache_stats":  handleCacheStats,
	"duckstack_fetch_log":    handleFetchLog,
}

var allTools = []ToolDefinition{
	{
		Name:        "duckstack_list_sources",
		Description: "List registered external sources with their endpoints, response paths and cache TTLs.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "duckstack_query_source",
		Description: "Fetch an external source as a table. Results are cached per source and parameter set. An optional SQL post-filter sees the rows as a table named after the source.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"source"},
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Registered source name",
				},
				"params": map[string]any{
					"type":                 "object",
					"description":          "Runtime query parameters; override the source defaults",
					"additionalProperties": map[string]any{"type": "string"},
				},
				"sql": map[string]any{
					"type":        "string",
					"description": "Optional SQL post-filter, e.g. SELECT * FROM <source> WHERE ...",
				},
			},
		},
	},
	{
		Name:        "duckstack_sql",
		Description: "Run a SQL statement against the query database.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"sql"},
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "SQL statement",
				},
			},
		},
	},
	{
		Name:        "duckstack_cache_stats",
		Description: "Show result cache statistics (entries, hits, misses, evictions).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "duckstack_fetch_log",
		Description: "Search recent source queries recorded in the fetch log.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Filter by source (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"errors_only": map[string]any{
					"type":        "boolean",
					"description": "Only failed queries (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleListSources(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.catalog == nil {
		return errorResult("Source catalog is not available.")
	}
	srcs, err := s.catalog.List(ctx)
	if err != nil {
		return errorResult("Error listing sources: " + err.Error())
	}
	return textResult(formatSources(srcs))
}

type querySourceArgs struct {
	Source string            `json:"source"`
	Params map[string]string `json:"params"`
	SQL    string            `json:"sql"`
}

func handleQuerySource(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.catalog == nil {
		return errorResult("Source catalog is not available.")
	}
	var args querySourceArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if args.Source == "" {
		return errorResult("source is required")
	}

	src, err := s.catalog.Get(ctx, args.Source)
	if errors.Is(err, catalog.ErrNotFound) {
		return errorResult(fmt.Sprintf("Unknown source %q.", args.Source))
	}
	if err != nil {
		return errorResult("Error resolving source: " + err.Error())
	}

	res, err := s.fetcher.Fetch(ctx, src, args.Params)
	if err != nil {
		return errorResult(err.Error())
	}

	table := res.Table
	if args.SQL != "" {
		table, err = s.engine.Filter(ctx, src.Name, res.Table, args.SQL)
		if err != nil {
			return errorResult(err.Error())
		}
	}

	origin := "fetched from upstream"
	if res.Cached {
		origin = "served from cache"
	}
	return textResult(fmt.Sprintf("Source %s (%s)\n%s", src.Name, origin, formatTable(table)))
}

type sqlArgs struct {
	SQL string `json:"sql"`
}

func handleSQL(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args sqlArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	res, err := s.engine.Query(ctx, args.SQL)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatTable(res))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	return textResult(formatCacheStats(s.cache.Stats()))
}

type fetchLogArgs struct {
	Source     string `json:"source"`
	Since      string `json:"since"`
	ErrorsOnly bool   `json:"errors_only"`
}

func handleFetchLog(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Fetch log is not configured.")
	}
	var args fetchLogArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.FetchLogQueryOpts{
		Source:     args.Source,
		ErrorsOnly: args.ErrorsOnly,
		Limit:      50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching fetch log: " + err.Error())
	}
	return textResult(formatFetchLog(entries))
}
