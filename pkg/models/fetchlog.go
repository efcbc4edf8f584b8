package models

import "time"

// FetchLogEntry records one execution of the source query pipeline.
type FetchLogEntry struct {
	RequestID   string    `json:"request_id"`
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint"`
	Cached      bool      `json:"cached"`
	Filtered    bool      `json:"filtered"`
	StatusCode  int       `json:"status_code"`
	RowCount    int       `json:"row_count"`
	LatencyMs   int64     `json:"latency_ms"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditConfig controls the fetch log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// FetchLogQueryOpts specifies filters for querying the fetch log.
type FetchLogQueryOpts struct {
	Source     string
	Since      time.Time
	RequestID  string
	ErrorsOnly bool
	Limit      int
}

// FetchLogStat holds aggregate counts for a source/day combination.
type FetchLogStat struct {
	Source   string
	Day      string
	Requests int
	Hits     int
	Errors   int
}
