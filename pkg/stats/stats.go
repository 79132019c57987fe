// Package stats aggregates per-client telemetry and seed counters in
// memory. Values are overwritten on every report and surfaced through the
// control API; nothing here persists.
package stats

import (
	"sync"

	"github.com/tpeyrard/hivefuzz/pkg/fuzzing"
	"github.com/tpeyrard/hivefuzz/pkg/metrics"
	"github.com/tpeyrard/hivefuzz/pkg/transport"
)

// SeedCounts partitions seed submissions by novelty.
type SeedCounts struct {
	New       uint64 `json:"new"`
	Duplicate uint64 `json:"duplicate"`
}

// ClientStats is the latest known picture of one client. Telemetry fields
// are pointers: nil means the engine never reported the field.
type ClientStats struct {
	ExecPerSec    *uint64 `json:"exec_per_sec,omitempty"`
	TotalExec     *uint64 `json:"total_exec,omitempty"`
	Cycle         *uint64 `json:"cycle,omitempty"`
	Timeout       *uint64 `json:"timeout,omitempty"`
	CoverageBlock *uint64 `json:"coverage_block,omitempty"`
	CoverageEdge  *uint64 `json:"coverage_edge,omitempty"`
	CoveragePath  *uint64 `json:"coverage_path,omitempty"`
	LastCovUpdate *uint64 `json:"last_cov_update,omitempty"`

	Seeds map[fuzzing.SeedType]*SeedCounts `json:"seeds"`
}

func newClientStats() *ClientStats {
	return &ClientStats{Seeds: make(map[fuzzing.SeedType]*SeedCounts)}
}

// Manager aggregates stats for the whole fleet, keyed by client string id.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*ClientStats
	broker  *metrics.BrokerMetrics
}

// NewManager creates an empty stat manager. The metrics handle may be nil.
func NewManager(broker *metrics.BrokerMetrics) *Manager {
	return &Manager{
		clients: make(map[string]*ClientStats),
		broker:  broker,
	}
}

func (m *Manager) client(strid string) *ClientStats {
	cs, ok := m.clients[strid]
	if !ok {
		cs = newClientStats()
		m.clients[strid] = cs
	}
	return cs
}

// RecordSeed counts one seed submission from a client.
func (m *Manager) RecordSeed(strid string, typ fuzzing.SeedType, isNew bool) {
	m.mu.Lock()
	cs := m.client(strid)
	counts, ok := cs.Seeds[typ]
	if !ok {
		counts = &SeedCounts{}
		cs.Seeds[typ] = counts
	}
	if isNew {
		counts.New++
	} else {
		counts.Duplicate++
	}
	m.mu.Unlock()

	m.broker.RecordSeed(typ.String(), isNew)
}

// RecordTelemetry overwrites every reported field of a client's stats.
// Nil fields leave the previous value in place.
func (m *Manager) RecordTelemetry(strid string, t transport.Telemetry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.client(strid)
	if t.ExecPerSec != nil {
		cs.ExecPerSec = t.ExecPerSec
	}
	if t.TotalExec != nil {
		cs.TotalExec = t.TotalExec
	}
	if t.Cycle != nil {
		cs.Cycle = t.Cycle
	}
	if t.Timeout != nil {
		cs.Timeout = t.Timeout
	}
	if t.CoverageBlock != nil {
		cs.CoverageBlock = t.CoverageBlock
	}
	if t.CoverageEdge != nil {
		cs.CoverageEdge = t.CoverageEdge
	}
	if t.CoveragePath != nil {
		cs.CoveragePath = t.CoveragePath
	}
	if t.LastCovUpdate != nil {
		cs.LastCovUpdate = t.LastCovUpdate
	}
}

// Snapshot returns a deep copy of every client's stats.
func (m *Manager) Snapshot() map[string]ClientStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ClientStats, len(m.clients))
	for strid, cs := range m.clients {
		cp := *cs
		cp.Seeds = make(map[fuzzing.SeedType]*SeedCounts, len(cs.Seeds))
		for typ, counts := range cs.Seeds {
			c := *counts
			cp.Seeds[typ] = &c
		}
		out[strid] = cp
	}
	return out
}

// Get returns a copy of one client's stats and whether it was known.
func (m *Manager) Get(strid string) (ClientStats, bool) {
	snap := m.Snapshot()
	cs, ok := snap[strid]
	return cs, ok
}
