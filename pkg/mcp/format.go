package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/duckstack/duckstack/pkg/models"
)

// maxTableRows bounds how many rows a tool result renders.
const maxTableRows = 100

func formatSources(srcs []models.SourceDefinition) string {
	if len(srcs) == 0 {
		return "No sources registered."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-50s %-20s %8s\n", "Name", "Endpoint", "Response Path", "TTL")
	b.WriteString(strings.Repeat("-", 101) + "\n")
	for _, s := range srcs {
		path := s.ResponsePath
		if path == "" {
			path = "(root)"
		}
		fmt.Fprintf(&b, "%-20s %-50s %-20s %7ds\n", s.Name, s.EndpointURL, path, s.TTLSeconds)
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s\n", s.Description)
		}
	}
	return b.String()
}

// formatTable renders a result as aligned text with typed column headers.
func formatTable(res *models.TabularResult) string {
	if len(res.Columns) == 0 {
		return "(no columns, 0 rows)"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	headers := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		headers[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i, row := range res.Rows {
		if i == maxTableRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellText(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()

	if n := res.RowCount(); n > maxTableRows {
		fmt.Fprintf(&b, "... %d of %d rows shown\n", maxTableRows, n)
	} else {
		fmt.Fprintf(&b, "%d rows\n", n)
	}
	return b.String()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Marshaler:
		if b, err := x.MarshalJSON(); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

func formatCacheStats(s models.CacheStats) string {
	var hitRate float64
	if total := s.Hits + s.Misses; total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Entries:   %d\nHits:      %d\nMisses:    %d\nEvictions: %d\nHit Rate:  %.1f%%\n",
		s.Entries, s.Hits, s.Misses, s.Evictions, hitRate)
}

func formatFetchLog(entries []models.FetchLogEntry) string {
	if len(entries) == 0 {
		return "No fetch log entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-18s %-5s %6s %6s %8s %s\n",
		"Time", "Source", "Cache", "Status", "Rows", "Latency", "Error")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, e := range entries {
		hit := "miss"
		if e.Cached {
			hit = "hit"
		}
		fmt.Fprintf(&b, "%-20s %-18s %-5s %6d %6d %6dms %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Source, hit,
			e.StatusCode, e.RowCount, e.LatencyMs, e.Error)
	}
	return b.String()
}
