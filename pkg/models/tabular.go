package models

// ColumnType is the inferred type of a tabular column.
type ColumnType string

// Column types in inference precedence order.
const (
	TypeInteger ColumnType = "integer"
	TypeFloat   ColumnType = "float"
	TypeBoolean ColumnType = "boolean"
	TypeString  ColumnType = "string"
	TypeJSON    ColumnType = "json"
	TypeNull    ColumnType = "null"
)

// Column is a named, typed column of a TabularResult.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// TabularResult is a row-major table. Every row holds exactly len(Columns)
// values, aligned positionally; absent values are nil.
//
// Results stored in the cache are shared between requests and must not be
// modified.
type TabularResult struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ColumnNames returns the column names in schema order.
func (t *TabularResult) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnTypes returns the column types in schema order.
func (t *TabularResult) ColumnTypes() []ColumnType {
	types := make([]ColumnType, len(t.Columns))
	for i, c := range t.Columns {
		types[i] = c.Type
	}
	return types
}

// RowCount returns the number of rows.
func (t *TabularResult) RowCount() int {
	return len(t.Rows)
}
