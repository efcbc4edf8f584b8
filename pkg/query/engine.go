package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/duckstack/duckstack/pkg/models"
)

// DefaultMaxRows caps result sets when no limit is configured.
const DefaultMaxRows = 10000

// QueryError reports a query the engine rejected or failed to run.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string { return "query: " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// Engine executes queries against a SQLite database.
type Engine struct {
	db      *sql.DB
	maxRows int
	// anchor keeps a shared in-memory database alive between queries.
	anchor *sql.Conn
}

// New opens the query database. An empty path or ":memory:" opens an
// in-memory database private to this Engine and shared by all of its
// connections.
func New(dbPath string, maxRows int) (*Engine, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	memory := dbPath == "" || dbPath == ":memory:"
	dsn := dbPath + "?_pragma=busy_timeout(5000)"
	if memory {
		dsn = "file:duckstack-" + strings.ToLower(ulid.Make().String()) + "?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open query db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open query db: %w", err)
	}

	e := &Engine{db: db, maxRows: maxRows}
	if memory {
		// The database is dropped when its last connection closes.
		if e.anchor, err = db.Conn(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("open query db: %w", err)
		}
	}
	return e, nil
}

// Query runs q and returns its result set.
func (e *Engine) Query(ctx context.Context, q string) (*models.TabularResult, error) {
	if strings.TrimSpace(q) == "" {
		return nil, &QueryError{Query: q, Err: fmt.Errorf("empty query")}
	}

	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &QueryError{Query: q, Err: err}
	}
	defer rows.Close()

	res, err := scanRows(rows, e.maxRows)
	if err != nil {
		return nil, &QueryError{Query: q, Err: err}
	}
	return res, nil
}

// Close releases the database connection.
func (e *Engine) Close() error {
	if e.anchor != nil {
		_ = e.anchor.Close()
	}
	return e.db.Close()
}

// scanRows reads a whole result set. Declared BOOLEAN columns come back as
// bool and declared JSON columns as raw JSON.
func scanRows(rows *sql.Rows, maxRows int) (*models.TabularResult, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	res := &models.TabularResult{
		Columns: make([]models.Column, len(cts)),
		Rows:    [][]any{},
	}
	decl := make([]string, len(cts))
	for i, ct := range cts {
		res.Columns[i].Name = ct.Name()
		decl[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	for rows.Next() {
		if len(res.Rows) == maxRows {
			return nil, fmt.Errorf("result exceeds %d rows; add a LIMIT", maxRows)
		}
		vals := make([]any, len(cts))
		ptrs := make([]any, len(cts))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = restore(v, decl[i])
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range res.Columns {
		res.Columns[i].Type = columnType(res.Rows, i, decl[i])
	}
	return res, nil
}

func restore(v any, decl string) any {
	switch decl {
	case declBoolean:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case declJSON:
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	return v
}

// columnType reports a declared type when there is one, otherwise the type
// of the stored values. SQLite values are dynamically typed, so a column
// mixing storage classes is reported as string.
func columnType(rows [][]any, col int, decl string) models.ColumnType {
	switch decl {
	case declInteger, "INT", "BIGINT":
		return models.TypeInteger
	case declReal, "DOUBLE", "FLOAT":
		return models.TypeFloat
	case declText:
		return models.TypeString
	case declBoolean:
		return models.TypeBoolean
	case declJSON:
		return models.TypeJSON
	}

	var t models.ColumnType
	for _, row := range rows {
		var vt models.ColumnType
		switch row[col].(type) {
		case nil:
			continue
		case int64:
			vt = models.TypeInteger
		case float64:
			vt = models.TypeFloat
		case bool:
			vt = models.TypeBoolean
		default:
			vt = models.TypeString
		}
		switch {
		case t == "":
			t = vt
		case t == vt:
		case (t == models.TypeInteger && vt == models.TypeFloat) || (t == models.TypeFloat && vt == models.TypeInteger):
			t = models.TypeFloat
		default:
			return models.TypeString
		}
	}
	if t == "" {
		return models.TypeNull
	}
	return t
}
