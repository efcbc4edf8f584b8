package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/duckstack/duckstack/pkg/models"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage a running server's result cache",
	}

	var addr string

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats struct {
				Enabled bool `json:"enabled"`
				models.CacheStats
			}
			if _, err := newAPIClient(addr).do(context.Background(), http.MethodGet, "/cache/stats", nil, &stats); err != nil {
				return err
			}
			if !stats.Enabled {
				fmt.Println("Cache is disabled.")
				return nil
			}
			fmt.Printf("Entries:   %d\nHits:      %d\nMisses:    %d\nEvictions: %d\n",
				stats.Entries, stats.Hits, stats.Misses, stats.Evictions)
			return nil
		},
	}
	addAddrFlag(statsCmd, &addr)

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(addr)
			if expiredOnly {
				var resp struct {
					Purged int `json:"purged"`
				}
				if _, err := c.do(context.Background(), http.MethodPost, "/cache/purge", nil, &resp); err != nil {
					return err
				}
				fmt.Printf("%d expired cache entries cleared.\n", resp.Purged)
				return nil
			}
			if _, err := c.do(context.Background(), http.MethodDelete, "/cache", nil, nil); err != nil {
				return err
			}
			fmt.Println("All cache entries cleared.")
			return nil
		},
	}
	addAddrFlag(clearCmd, &addr)
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	var params []string
	invalidateCmd := &cobra.Command{
		Use:   "invalidate <source>",
		Short: "Drop the cached result for a source and parameter set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			req := models.InvalidateRequest{Source: args[0], Params: p}
			if _, err := newAPIClient(addr).do(context.Background(), http.MethodPost, "/cache/invalidate", req, nil); err != nil {
				return err
			}
			fmt.Printf("Cache entry for %q invalidated.\n", args[0])
			return nil
		},
	}
	addAddrFlag(invalidateCmd, &addr)
	invalidateCmd.Flags().StringArrayVarP(&params, "param", "p", nil, "runtime query parameter key=value (repeatable)")

	cmd.AddCommand(statsCmd, clearCmd, invalidateCmd)
	return cmd
}
