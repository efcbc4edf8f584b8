package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/duckstack/duckstack/pkg/models"
)

// ErrNotFound is returned when no source has the requested name.
var ErrNotFound = errors.New("source not found")

// Store is the source catalog backed by a SQLite database.
type Store struct {
	db *sql.DB
}

const createSourcesTable = `
CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	endpoint_url TEXT NOT NULL,
	query_params TEXT NOT NULL DEFAULT '{}',
	api_key_override TEXT NOT NULL DEFAULT '',
	auth_env_var TEXT NOT NULL DEFAULT '',
	api_key_param TEXT NOT NULL DEFAULT '',
	auth_header TEXT NOT NULL DEFAULT '',
	response_path TEXT NOT NULL DEFAULT '',
	ttl_seconds INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const sourceColumns = `name, endpoint_url, query_params, api_key_override, auth_env_var,
	api_key_param, auth_header, response_path, ttl_seconds, description`

// New opens the catalog database and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	if _, err := db.Exec(createSourcesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the source named name, or ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*models.SourceDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %q: %w", name, err)
	}
	return src, nil
}

// List returns all sources ordered by name.
func (s *Store) List(ctx context.Context) ([]models.SourceDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.SourceDefinition
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// Upsert validates src and inserts or replaces it.
func (s *Store) Upsert(ctx context.Context, src models.SourceDefinition) error {
	if err := src.Validate(); err != nil {
		return err
	}
	return upsert(ctx, s.db, src)
}

// Seed validates and upserts every definition in one transaction. Sources
// not listed are left untouched.
func (s *Store) Seed(ctx context.Context, sources []models.SourceDefinition) error {
	for i := range sources {
		if err := sources[i].Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, src := range sources {
		if err := upsert(ctx, tx, src); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, ex execer, src models.SourceDefinition) error {
	params := src.QueryParams
	if params == nil {
		params = map[string]string{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode query params: %w", err)
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			endpoint_url = excluded.endpoint_url,
			query_params = excluded.query_params,
			api_key_override = excluded.api_key_override,
			auth_env_var = excluded.auth_env_var,
			api_key_param = excluded.api_key_param,
			auth_header = excluded.auth_header,
			response_path = excluded.response_path,
			ttl_seconds = excluded.ttl_seconds,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		src.Name, src.EndpointURL, string(paramsJSON), src.APIKeyOverride, src.AuthEnvVar,
		src.APIKeyParam, src.AuthHeader, src.ResponsePath, src.TTLSeconds, src.Description,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert source %q: %w", src.Name, err)
	}
	return nil
}

// Delete removes the source named name. It reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete source %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete source %q: %w", name, err)
	}
	return n == 1, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*models.SourceDefinition, error) {
	var src models.SourceDefinition
	var paramsJSON string
	if err := row.Scan(
		&src.Name, &src.EndpointURL, &paramsJSON, &src.APIKeyOverride, &src.AuthEnvVar,
		&src.APIKeyParam, &src.AuthHeader, &src.ResponsePath, &src.TTLSeconds, &src.Description,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paramsJSON), &src.QueryParams); err != nil {
		return nil, fmt.Errorf("decode query params for %q: %w", src.Name, err)
	}
	return &src, nil
}
