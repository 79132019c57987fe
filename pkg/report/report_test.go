package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const boundReport = `{
  "alerts": [
    {"id": 101, "binding_id": 1, "kind": "UNINIT.STACK.MUST", "file": "parse.c", "line": 88},
    {"id": 102, "binding_id": 2, "kind": "ABV.GENERAL", "file": "decode.c", "line": 12}
  ]
}`

const unboundReport = `[
  {"id": 101, "kind": "UNINIT.STACK.MUST"},
  {"id": 102, "kind": "ABV.GENERAL"}
]`

func TestLoadBoundReport(t *testing.T) {
	r, err := Load(writeReport(t, boundReport))
	require.NoError(t, err)

	assert.True(t, r.HasBinding())
	assert.Len(t, r.Alerts, 2)

	// With bindings, updates resolve by binding id.
	a, err := r.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, 102, a.ID)

	_, err = r.Resolve(101)
	assert.ErrorIs(t, err, ErrUnknownAlert)
}

func TestLoadUnboundReport(t *testing.T) {
	// A bare JSON list of alerts is accepted too.
	r, err := Load(writeReport(t, unboundReport))
	require.NoError(t, err)

	assert.False(t, r.HasBinding())

	// Without bindings, updates fall through to raw id lookup.
	a, err := r.Resolve(101)
	require.NoError(t, err)
	assert.Equal(t, 101, a.ID)
}

func TestLoadFailures(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeReport(t, "not json"))
	assert.Error(t, err)

	_, err = Load(writeReport(t, `{"alerts": []}`))
	assert.Error(t, err)
}

func TestAllValidated(t *testing.T) {
	r, err := Load(writeReport(t, unboundReport))
	require.NoError(t, err)

	assert.False(t, r.AllValidated())
	r.Alerts[0].Validated = true
	assert.False(t, r.AllValidated())
	r.Alerts[1].Validated = true
	assert.True(t, r.AllValidated())
	assert.Equal(t, 2, r.ValidatedCount())
}

func TestWriteCSV(t *testing.T) {
	r, err := Load(writeReport(t, boundReport))
	require.NoError(t, err)
	r.Alerts[0].Covered = true

	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, r.WriteCSV(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 alerts

	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "101", rows[1][0])
	assert.Equal(t, "true", rows[1][7])  // covered
	assert.Equal(t, "false", rows[1][8]) // validated
	assert.Equal(t, "false", rows[2][7])
}

func TestToJSONRoundTrip(t *testing.T) {
	r, err := Load(writeReport(t, boundReport))
	require.NoError(t, err)

	data, err := r.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"binding_id":1`)

	var back DefectReport
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Alerts, 2)
	assert.Equal(t, 102, back.Alerts[1].ID)
	assert.Equal(t, 2, back.Alerts[1].Binding)
}
