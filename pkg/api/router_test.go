package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpeyrard/hivefuzz/pkg/binaries"
	"github.com/tpeyrard/hivefuzz/pkg/broker"
	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/report"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
	"github.com/tpeyrard/hivefuzz/pkg/workspace"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()

	ws, err := workspace.Open(t.TempDir())
	require.NoError(t, err)

	reportPath := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(`[{"id": 1, "kind": "ABV.GENERAL"}]`), 0644))
	rep, err := report.Load(reportPath)
	require.NoError(t, err)

	b, err := broker.New(broker.Options{
		Workspace: ws,
		Report:    rep,
		Binaries:  binaries.NewStaticRegistry(nil),
		Transport: transport.NewMemoryTransport(),
		Mode:      broker.Full,
		CheckMode: fuzzing.CheckAll,
	})
	require.NoError(t, err)
	return b
}

func get(t *testing.T, h http.Handler, path string) Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthRoute(t *testing.T) {
	h := NewRouter(newTestBroker(t))
	resp := get(t, h, "/health")
	assert.Equal(t, "ok", resp.Status)
}

func TestCampaignRoute(t *testing.T) {
	b := newTestBroker(t)
	b.Start()
	h := NewRouter(b)

	resp := get(t, h, "/api/v1/campaign")
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var info broker.CampaignInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "RUNNING", info.State)
	assert.Equal(t, 1, info.Alerts)
}

func TestStopRoute(t *testing.T) {
	b := newTestBroker(t)
	b.Start()
	h := NewRouter(b)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaign/stop", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, broker.Terminated, b.State())
}

func TestAlertsRoute(t *testing.T) {
	h := NewRouter(newTestBroker(t))
	resp := get(t, h, "/api/v1/alerts")

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var alerts []broker.AlertInfo
	require.NoError(t, json.Unmarshal(data, &alerts))
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Covered)
}
