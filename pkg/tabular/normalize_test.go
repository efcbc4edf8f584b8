package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckstack/duckstack/pkg/models"
)

func mustRecords(t *testing.T, doc string) []Value {
	t.Helper()
	v, err := Parse([]byte(doc))
	require.NoError(t, err)
	recs, err := v.Records("")
	require.NoError(t, err)
	return recs
}

func TestNormalizeMissingKeys(t *testing.T) {
	res, err := Normalize(mustRecords(t, `[{"id":1,"name":"A"},{"id":2}]`))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, res.ColumnNames())
	require.Equal(t, 2, res.RowCount())
	assert.Equal(t, []any{int64(1), "A"}, res.Rows[0])
	assert.Equal(t, []any{int64(2), nil}, res.Rows[1])
}

func TestNormalizeFirstSeenColumnOrder(t *testing.T) {
	res, err := Normalize(mustRecords(t, `[{"b":1},{"a":2,"b":3},{"c":4,"a":5}]`))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, res.ColumnNames())
	assert.Equal(t, []any{int64(1), nil, nil}, res.Rows[0])
	assert.Equal(t, []any{int64(3), int64(2), nil}, res.Rows[1])
	assert.Equal(t, []any{nil, int64(5), int64(4)}, res.Rows[2])
	for _, row := range res.Rows {
		assert.Len(t, row, len(res.Columns))
	}
}

func TestNormalizeEmpty(t *testing.T) {
	res, err := Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Columns)
	assert.Equal(t, 0, res.RowCount())

	res, err = Normalize(mustRecords(t, `[]`))
	require.NoError(t, err)
	assert.Empty(t, res.Columns)
}

func TestNormalizeRejectsScalars(t *testing.T) {
	v, err := Parse([]byte(`[1,2]`))
	require.NoError(t, err)
	_, err = Normalize(v.Elements())
	assert.Error(t, err)
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want models.ColumnType
	}{
		{"integers", `[1,2,-3]`, models.TypeInteger},
		{"integers with nulls", `[1,null,3]`, models.TypeInteger},
		{"floats", `[1.5,2.25]`, models.TypeFloat},
		{"integers widen to float", `[1,2.5]`, models.TypeFloat},
		{"exponent is float", `[1e3]`, models.TypeFloat},
		{"int64 overflow is float", `[1,99999999999999999999]`, models.TypeFloat},
		{"booleans", `[true,false,null]`, models.TypeBoolean},
		{"strings", `["a","b"]`, models.TypeString},
		{"numbers and strings", `[1,"a"]`, models.TypeString},
		{"booleans and numbers", `[true,1]`, models.TypeString},
		{"nested", `[{"a":1},[1,2]]`, models.TypeJSON},
		{"nested and scalar", `[{"a":1},"x"]`, models.TypeString},
		{"all null", `[null,null]`, models.TypeNull},
		{"empty", `[]`, models.TypeNull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, InferType(v.Elements()))
		})
	}
}

func TestNormalizeConvertsValues(t *testing.T) {
	res, err := Normalize(mustRecords(t, `[
		{"i":1,"f":1,"b":true,"s":"x","mix":1,"j":{"k":[1]},"n":null},
		{"i":2,"f":2.5,"b":false,"s":"y","mix":"two","j":[true],"n":null}
	]`))
	require.NoError(t, err)

	assert.Equal(t, []models.ColumnType{
		models.TypeInteger, models.TypeFloat, models.TypeBoolean, models.TypeString,
		models.TypeString, models.TypeJSON, models.TypeNull,
	}, res.ColumnTypes())

	row := res.Rows[0]
	assert.Equal(t, int64(1), row[0])
	assert.Equal(t, float64(1), row[1])
	assert.Equal(t, true, row[2])
	assert.Equal(t, "x", row[3])
	assert.Equal(t, "1", row[4])
	assert.Equal(t, `{"k":[1]}`, row[5].(Value).Text())
	assert.Nil(t, row[6])

	assert.Equal(t, "two", res.Rows[1][4])
	assert.Equal(t, 2.5, res.Rows[1][1])
}
