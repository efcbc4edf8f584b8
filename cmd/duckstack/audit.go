package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/audit"
	"github.com/duckstack/duckstack/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the fetch log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath string
		source     string
		since      string
		requestID  string
		errorsOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search fetch log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.FetchLogQueryOpts{
				Source:     source,
				RequestID:  requestID,
				ErrorsOnly: errorsOnly,
				Limit:      limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatFetchLog(entries))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&source, "source", "", "filter by source")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "filter by request ID")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "only show failed requests")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show fetch log statistics by source and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatFetchLogStats(stats))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete fetch log entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d fetch log entries.\n", deleted)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	auditCfg := cfg.Audit
	auditCfg.DBPath = cfg.AuditDBPath()
	if err := ensureDir(auditCfg.DBPath); err != nil {
		return nil, nil, err
	}
	l, err := audit.New(auditCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open fetch log: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatFetchLog(entries []models.FetchLogEntry) string {
	if len(entries) == 0 {
		return "No fetch log entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %-18s %-6s %6s %6s %8s %-20s %s\n",
		"REQUEST ID", "SOURCE", "CACHE", "STATUS", "ROWS", "LATENCY", "TIME", "ERROR")
	b.WriteString(strings.Repeat("-", 110) + "\n")
	for _, e := range entries {
		hit := "miss"
		if e.Cached {
			hit = "hit"
		}
		fmt.Fprintf(&b, "%-28s %-18s %-6s %6d %6d %6dms %-20s %s\n",
			e.RequestID, e.Source, hit, e.StatusCode, e.RowCount,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Error)
	}
	return b.String()
}

func formatFetchLogStats(stats []models.FetchLogStat) string {
	if len(stats) == 0 {
		return "No fetch log stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %8s %8s %8s\n", "SOURCE", "DAY", "REQUESTS", "HITS", "ERRORS")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-20s %-12s %8d %8d %8d\n", s.Source, s.Day, s.Requests, s.Hits, s.Errors)
	}
	return b.String()
}
