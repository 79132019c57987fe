package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalConfig = `
campaign:
  workspace: /var/lib/hivefuzz/ws
  binaries: /var/lib/hivefuzz/bin
  report: /var/lib/hivefuzz/report.json
`

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/hivefuzz/report.json", cfg.Campaign.Report)
	// Defaults fill the rest.
	assert.Equal(t, "FULL", cfg.Campaign.Mode)
	assert.Equal(t, "CHECK_ALL", cfg.Campaign.CheckMode)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 10*time.Second, cfg.API.ReadTimeout)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "FULL", cfg.Campaign.Mode)
	assert.Empty(t, cfg.Campaign.Report)
}

func TestLoadInvalidMode(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"  mode: SOMETIMES\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mode")
}

func TestLoadInvalidLogLevel(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
logging:
  level: LOUD
`))
	assert.Error(t, err)
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
api:
  enabled: true
  port: 9090
  read_timeout: 5s
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 5*time.Second, cfg.API.ReadTimeout)
}

func TestJournalPathDefaultsUnderWorkspace(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`  journal:
    enabled: true
`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/lib/hivefuzz/ws", "journal"), cfg.Campaign.Journal.Path)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Campaign.Report = "r.json"

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "r.json", loaded.Campaign.Report)
	assert.Equal(t, cfg.Campaign.Mode, loaded.Campaign.Mode)
}

func TestValidateRejectsBadSampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Campaign.Report = "r.json"
	cfg.Telemetry.SampleRate = 3.5
	assert.Error(t, Validate(cfg))
}
