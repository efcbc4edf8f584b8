package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duckstack/duckstack/pkg/models"
)

func TestPrintTable(t *testing.T) {
	res := &models.TabularResult{
		Columns: []models.Column{
			{Name: "city", Type: models.TypeString},
			{Name: "temp", Type: models.TypeFloat},
			{Name: "meta", Type: models.TypeJSON},
		},
		Rows: [][]any{
			{"Oslo", 4.5, json.RawMessage(`{"a":1}`)},
			{"Rome", nil, nil},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, res))

	want := "city  temp  meta\n" +
		"Oslo  4.5   {\"a\":1}\n" +
		"Rome  NULL  NULL\n" +
		"(2 rows)\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, &models.TabularResult{}))
	assert.Equal(t, "(0 rows)\n", buf.String())
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "42", formatCell(int64(42)))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "1e+21", formatCell(1e21))
	assert.Equal(t, "[1,2]", formatCell(json.RawMessage(`[1,2]`)))
}

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"units=metric", "q=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"units": "metric", "q": "a=b", "empty": ""}, p)

	p, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestReadSourcesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_QUOTES_KEY", "k-1")

	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte(`
- name: quotes
  endpoint_url: https://quotes.example.com
  api_key_override: ${TEST_QUOTES_KEY}
`), 0o644))
	srcs, err := readSourcesFile(list)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, "k-1", srcs[0].APIKeyOverride)

	doc := filepath.Join(dir, "doc.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(`
sources:
  - name: a
    endpoint_url: https://a.example.com
  - name: b
    endpoint_url: https://b.example.com
`), 0o644))
	srcs, err = readSourcesFile(doc)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "b", srcs[1].Name)
}

func TestAuthSummary(t *testing.T) {
	assert.Equal(t, "-", authSummary(models.SourceDefinition{}))
	assert.Equal(t, "$KEY ?appid", authSummary(models.SourceDefinition{AuthEnvVar: "KEY", APIKeyParam: "appid"}))
	assert.Equal(t, "inline key Authorization", authSummary(models.SourceDefinition{APIKeyOverride: "x", AuthHeader: "Authorization"}))
}
