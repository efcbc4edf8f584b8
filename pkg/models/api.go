package models

// SourceQueryRequest asks for the rows of a source, optionally post-filtered.
type SourceQueryRequest struct {
	Source string            `json:"source"`
	Params map[string]string `json:"params,omitempty"`
	SQL    string            `json:"sql,omitempty"`
}

// SourceQueryResponse is the tabular answer to a SourceQueryRequest.
type SourceQueryResponse struct {
	Columns    []string     `json:"columns"`
	Types      []ColumnType `json:"types,omitempty"`
	Rows       [][]any      `json:"rows"`
	RowCount   int          `json:"row_count"`
	Cached     bool         `json:"cached"`
	SourceName string       `json:"source_name"`
}

// QueryRequest is a raw query against the query engine.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse is the result of a raw query.
type QueryResponse struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// InvalidateRequest identifies a cache entry by source and runtime params.
type InvalidateRequest struct {
	Source string            `json:"source"`
	Params map[string]string `json:"params,omitempty"`
}

// NewSourceQueryResponse builds the caller-facing response for a result.
func NewSourceQueryResponse(source string, res *TabularResult, cached bool) SourceQueryResponse {
	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return SourceQueryResponse{
		Columns:    res.ColumnNames(),
		Types:      res.ColumnTypes(),
		Rows:       rows,
		RowCount:   res.RowCount(),
		Cached:     cached,
		SourceName: source,
	}
}
