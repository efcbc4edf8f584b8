package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/duckstack/duckstack/pkg/models"
)

func newWarmCmd() *cobra.Command {
	var (
		addr        string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "warm [source...]",
		Short: "Prefetch sources on a running server so later queries hit the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c := newAPIClient(addr)

			names := args
			if len(names) == 0 {
				var srcs []models.SourceDefinition
				if _, err := c.do(ctx, http.MethodGet, "/sources", nil, &srcs); err != nil {
					return err
				}
				for _, s := range srcs {
					names = append(names, s.Name)
				}
			}

			results, err := warm(ctx, c, names, concurrency)
			for _, r := range results {
				fmt.Println(r)
			}
			return err
		},
	}

	addAddrFlag(cmd, &addr)
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "max sources fetched at once")
	return cmd
}

// warm queries every named source and returns one status line per source
// in input order. The first failure is returned after all sources ran.
func warm(ctx context.Context, c *apiClient, names []string, limit int) ([]string, error) {
	lines := make([]string, len(names))
	var (
		mu       sync.Mutex
		firstErr error
	)

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			var resp models.SourceQueryResponse
			hdr, err := c.do(ctx, http.MethodPost, "/sources/query", models.SourceQueryRequest{Source: name}, &resp)
			if err != nil {
				lines[i] = fmt.Sprintf("%-20s error: %v", name, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("warm %q: %w", name, err)
				}
				mu.Unlock()
				return nil
			}
			lines[i] = fmt.Sprintf("%-20s %-4s %d rows", name, hdr.Get("X-Duckstack-Cache"), resp.RowCount)
			return nil
		})
	}
	_ = g.Wait()
	return lines, firstErr
}
