package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/duckstack/duckstack/pkg/models"
)

// Declared SQLite types for materialized columns.
const (
	declInteger = "INTEGER"
	declReal    = "REAL"
	declText    = "TEXT"
	declBoolean = "BOOLEAN"
	declJSON    = "JSON"
)

// placeholderColumn stands in for the column set of a table with no columns,
// since SQLite cannot create one.
const placeholderColumn = "value"

const cleanupTimeout = 5 * time.Second

// Filter runs q against in, exposed as a relation named relation. The rows
// are materialized into a uniquely named temporary table on a dedicated
// connection and aliased by a temporary view; both are dropped before Filter
// returns, whatever the outcome.
func (e *Engine) Filter(ctx context.Context, relation string, in *models.TabularResult, q string) (*models.TabularResult, error) {
	if strings.TrimSpace(q) == "" {
		return nil, &QueryError{Query: q, Err: fmt.Errorf("empty query")}
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	table := "ephemeral_" + strings.ToLower(ulid.Make().String())
	defer func() {
		// The request context may already be cancelled.
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		_, _ = conn.ExecContext(cctx, "DROP VIEW IF EXISTS temp."+quoteIdent(relation))
		_, _ = conn.ExecContext(cctx, "DROP TABLE IF EXISTS temp."+quoteIdent(table))
	}()

	cols := columnDecls(in.Columns)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))); err != nil {
		return nil, fmt.Errorf("materialize %q: %w", relation, err)
	}

	if len(in.Columns) > 0 && len(in.Rows) > 0 {
		if err := insertRows(ctx, conn, table, len(in.Columns), in.Rows); err != nil {
			return nil, fmt.Errorf("materialize %q: %w", relation, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "DROP VIEW IF EXISTS temp."+quoteIdent(relation)); err != nil {
		return nil, fmt.Errorf("materialize %q: %w", relation, err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE TEMP VIEW %s AS SELECT * FROM temp.%s", quoteIdent(relation), quoteIdent(table))); err != nil {
		return nil, fmt.Errorf("materialize %q: %w", relation, err)
	}

	rows, err := conn.QueryContext(ctx, q)
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

func insertRows(ctx context.Context, conn *sql.Conn, table string, width int, rows [][]any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	marks := strings.TrimSuffix(strings.Repeat("?, ", width), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO temp.%s VALUES (%s)", quoteIdent(table), marks))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, width)
	for _, row := range rows {
		for i, v := range row {
			a, err := bindValue(v)
			if err != nil {
				return err
			}
			args[i] = a
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// bindValue converts a table value into something the driver accepts.
// Nested JSON values are stored as their text.
func bindValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return t, nil
	case json.RawMessage:
		return string(t), nil
	case json.Marshaler:
		b, err := t.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

// columnDecls returns the column definitions for a materialized table.
// Names that collide case-insensitively, as SQLite compares them, get a
// numeric suffix.
func columnDecls(cols []models.Column) []string {
	if len(cols) == 0 {
		return []string{quoteIdent(placeholderColumn)}
	}

	used := make(map[string]bool, len(cols))
	out := make([]string, len(cols))
	for i, c := range cols {
		name := c.Name
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", c.Name, n)
		}
		used[strings.ToLower(name)] = true
		out[i] = strings.TrimSpace(quoteIdent(name) + " " + declType(c.Type))
	}
	return out
}

func declType(t models.ColumnType) string {
	switch t {
	case models.TypeInteger:
		return declInteger
	case models.TypeFloat:
		return declReal
	case models.TypeBoolean:
		return declBoolean
	case models.TypeString:
		return declText
	case models.TypeJSON:
		return declJSON
	default:
		return ""
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
