package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("campaign started", "mode", "FULL")
	line := buf.String()
	assert.Contains(t, line, "[INFO] campaign started")
	assert.Contains(t, line, "mode=FULL")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("hidden")
	Info("also hidden")
	Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("seed received", "digest", "abcd")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record))
	assert.Equal(t, "seed received", record["msg"])
	assert.Equal(t, "abcd", record["digest"])
}

func TestSinkWritesFile(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	path := filepath.Join(t.TempDir(), "Cli-0-TT.log")
	s, err := NewSink(path, "Cli-0-TT", 0)
	require.NoError(t, err)
	s.SetEcho(false)

	s.Log("INFO", "exec/s:100")
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO]: exec/s:100")
}
