package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/duckstack/duckstack/pkg/models"
)

// Logger writes and queries fetch log entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  models.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the fetch log database, creates the schema and starts the
// hourly retention loop.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS fetch_log (
		request_id  TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		cached      INTEGER NOT NULL DEFAULT 0,
		filtered    INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER NOT NULL DEFAULT 0,
		row_count   INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_fetch_log_created ON fetch_log(created_at)`)
	return err
}

// Log inserts an entry. A nil Logger discards it.
func (l *Logger) Log(ctx context.Context, entry models.FetchLogEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO fetch_log
		(request_id, source, fingerprint, cached, filtered, status_code,
		 row_count, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Source, entry.Fingerprint, entry.Cached, entry.Filtered,
		entry.StatusCode, entry.RowCount, entry.LatencyMs, entry.Error, entry.CreatedAt,
	)
	return err
}

// Query returns entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.FetchLogQueryOpts) ([]models.FetchLogEntry, error) {
	q := `SELECT request_id, source, fingerprint, cached, filtered, status_code,
		row_count, latency_ms, error, created_at
		FROM fetch_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Source != "" {
		q += " AND source = ?"
		args = append(args, opts.Source)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}
	if opts.ErrorsOnly {
		q += " AND error != ''"
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query fetch log: %w", err)
	}
	defer rows.Close()

	var entries []models.FetchLogEntry
	for rows.Next() {
		var e models.FetchLogEntry
		if err := rows.Scan(
			&e.RequestID, &e.Source, &e.Fingerprint, &e.Cached, &e.Filtered,
			&e.StatusCode, &e.RowCount, &e.LatencyMs, &e.Error, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fetch log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns request, cache hit and error counts grouped by source and day.
func (l *Logger) Stats(ctx context.Context) ([]models.FetchLogStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT source, date(created_at) AS day, count(*),
			sum(CASE WHEN cached THEN 1 ELSE 0 END),
			sum(CASE WHEN error != '' THEN 1 ELSE 0 END)
		 FROM fetch_log GROUP BY source, day ORDER BY day DESC, source`)
	if err != nil {
		return nil, fmt.Errorf("fetch log stats: %w", err)
	}
	defer rows.Close()

	var stats []models.FetchLogStat
	for rows.Next() {
		var s models.FetchLogStat
		var day sql.NullString
		if err := rows.Scan(&s.Source, &day, &s.Requests, &s.Hits, &s.Errors); err != nil {
			return nil, fmt.Errorf("scan fetch log stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM fetch_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fetch log cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	if l.cfg.RetentionDays <= 0 {
		<-l.done
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
