package tabular

import (
	"fmt"
	"strconv"

	"github.com/duckstack/duckstack/pkg/models"
)

// Normalize flattens records into a table. The column set is the union of
// record keys in first-seen order; a key missing from a record yields nil in
// that row. Empty input yields zero columns and zero rows.
//
// Nested objects and arrays are not expanded: they become a single json
// column holding the Value.
func Normalize(records []Value) (*models.TabularResult, error) {
	index := make(map[string]int)
	var names []string
	for i, rec := range records {
		if rec.kind != Object {
			return nil, fmt.Errorf("record %d is %s, want object", i, rec.kind)
		}
		for _, k := range rec.obj.keys {
			if _, ok := index[k]; !ok {
				index[k] = len(names)
				names = append(names, k)
			}
		}
	}

	raw := make([][]Value, len(records))
	for i, rec := range records {
		row := make([]Value, len(names))
		for _, k := range rec.obj.keys {
			row[index[k]] = rec.obj.fields[k]
		}
		raw[i] = row
	}

	out := &models.TabularResult{
		Columns: make([]models.Column, len(names)),
		Rows:    make([][]any, len(records)),
	}

	column := make([]Value, len(records))
	for c, name := range names {
		for r := range raw {
			column[r] = raw[r][c]
		}
		out.Columns[c] = models.Column{Name: name, Type: InferType(column)}
	}

	for r, row := range raw {
		vals := make([]any, len(names))
		for c, v := range row {
			vals[c] = convert(v, out.Columns[c].Type)
		}
		out.Rows[r] = vals
	}
	return out, nil
}

// InferType picks a column type from its sampled values. Nulls are ignored.
// Precedence: integer, then float (integers widen), then boolean, then json
// for all-nested columns, and string for anything else. A column with no
// non-null value is null.
func InferType(values []Value) models.ColumnType {
	var ints, floats, bools, strs, nested, seen int
	for _, v := range values {
		switch v.kind {
		case Null:
			continue
		case Number:
			if isInteger(v.s) {
				ints++
			} else {
				floats++
			}
		case Bool:
			bools++
		case String:
			strs++
		case Array, Object:
			nested++
		}
		seen++
	}

	switch {
	case seen == 0:
		return models.TypeNull
	case ints == seen:
		return models.TypeInteger
	case ints+floats == seen:
		return models.TypeFloat
	case bools == seen:
		return models.TypeBoolean
	case nested == seen:
		return models.TypeJSON
	default:
		return models.TypeString
	}
}

func isInteger(lit string) bool {
	_, err := strconv.ParseInt(lit, 10, 64)
	return err == nil
}

func convert(v Value, t models.ColumnType) any {
	if v.kind == Null {
		return nil
	}
	switch t {
	case models.TypeInteger:
		n, _ := strconv.ParseInt(v.s, 10, 64)
		return n
	case models.TypeFloat:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return v.s // out of float64 range
		}
		return f
	case models.TypeBoolean:
		return v.b
	case models.TypeJSON:
		return v
	default:
		return v.Text()
	}
}
