package tabular

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	v, err := Parse([]byte(`{"z":1,"a":{"y":true,"b":null},"m":[1,"x"]}`))
	require.NoError(t, err)

	assert.Equal(t, Object, v.Kind())
	assert.Equal(t, []string{"z", "a", "m"}, v.Keys())

	a, ok := v.Field("a")
	require.True(t, ok)
	assert.Equal(t, []string{"y", "b"}, a.Keys())

	m, _ := v.Field("m")
	assert.Len(t, m.Elements(), 2)
}

func TestParseDuplicateKeys(t *testing.T) {
	v, err := Parse([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, v.Keys())
	a, _ := v.Field("a")
	assert.Equal(t, "3", a.Text())
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":}`, `[1,2`, `{"a":1} {"b":2}`, `nope`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestMarshalJSONRoundTrip(t *testing.T) {
	in := `{"id":7,"tags":["a","b"],"meta":{"ok":false,"score":1.5,"none":null},"s":"q\"uote"}`
	v, err := Parse([]byte(in))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestText(t *testing.T) {
	v, err := Parse([]byte(`["plain",12,true,{"k":"v"}]`))
	require.NoError(t, err)

	el := v.Elements()
	assert.Equal(t, "plain", el[0].Text())
	assert.Equal(t, "12", el[1].Text())
	assert.Equal(t, "true", el[2].Text())
	assert.Equal(t, `{"k":"v"}`, el[3].Text())
}

func TestLookup(t *testing.T) {
	v, err := Parse([]byte(`{"data":{"items":[{"x":1},{"x":2}],"count":2}}`))
	require.NoError(t, err)

	recs, err := v.Records("data.items")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	root, err := v.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, Object, root.Kind())
}

func TestLookupErrors(t *testing.T) {
	v, err := Parse([]byte(`{"data":{"items":[{"x":1}],"count":2,"mixed":[1,{"x":1}]}}`))
	require.NoError(t, err)

	tests := []struct {
		path    string
		segment string
	}{
		{"data.missing", "missing"},
		{"nope", "nope"},
		{"data.count.value", "value"},
		{"data.items.0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := v.Records(tt.path)
			var pe *PathError
			require.True(t, errors.As(err, &pe), "want PathError, got %v", err)
			assert.Equal(t, tt.path, pe.Path)
			assert.Equal(t, tt.segment, pe.Segment)
		})
	}

	_, err = v.Records("data.count")
	var pe *PathError
	assert.True(t, errors.As(err, &pe), "non-array target should be a PathError")

	_, err = v.Records("data.mixed")
	assert.True(t, errors.As(err, &pe), "non-object element should be a PathError")
}
