package broker

import (
	"time"

	"github.com/tpeyrard/hivefuzz/pkg/stats"
)

// CampaignInfo is the operator-facing picture of the campaign.
type CampaignInfo struct {
	State           string         `json:"state"`
	Mode            string         `json:"mode"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	Clients         int            `json:"clients"`
	ClientsRunning  int            `json:"clients_running"`
	Seeds           int            `json:"seeds"`
	SeedsByType     map[string]int `json:"seeds_by_type"`
	Alerts          int            `json:"alerts"`
	AlertsCovered   int            `json:"alerts_covered"`
	AlertsValidated int            `json:"alerts_validated"`
}

// ClientInfo is the operator-facing picture of one client.
type ClientInfo struct {
	StrID     string `json:"strid"`
	Arch      string `json:"arch"`
	Cpus      int    `json:"cpus"`
	Memory    uint64 `json:"memory"`
	Running   bool   `json:"running"`
	Engine    string `json:"engine,omitempty"`
	Coverage  string `json:"coverage,omitempty"`
	ExecMode  string `json:"exec_mode,omitempty"`
	SeedsSent int    `json:"seeds_sent"`
}

// AlertInfo is the operator-facing picture of one alert.
type AlertInfo struct {
	ID        int    `json:"id"`
	Binding   int    `json:"binding,omitempty"`
	Kind      string `json:"kind,omitempty"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Covered   bool   `json:"covered"`
	Validated bool   `json:"validated"`
}

// Campaign returns the current campaign summary.
func (b *Broker) Campaign() CampaignInfo {
	b.mu.Lock()
	state := b.state
	started := b.startTime
	b.mu.Unlock()

	info := CampaignInfo{
		State:           state.String(),
		Mode:            b.mode.String(),
		Clients:         b.fleet.Len(),
		ClientsRunning:  len(b.fleet.Running()),
		Seeds:           b.pool.Len(),
		SeedsByType:     make(map[string]int),
		Alerts:          len(b.rep.Alerts),
		AlertsCovered:   b.rep.CoveredCount(),
		AlertsValidated: b.rep.ValidatedCount(),
	}
	if !started.IsZero() {
		info.StartedAt = &started
	}
	for typ, n := range b.pool.CountByType() {
		info.SeedsByType[typ.String()] = n
	}
	return info
}

// Clients returns the fleet in connection order.
func (b *Broker) Clients() []ClientInfo {
	all := b.fleet.All()
	out := make([]ClientInfo, 0, len(all))
	for _, c := range all {
		info := ClientInfo{
			StrID:     c.StrID(),
			Arch:      c.Arch.String(),
			Cpus:      c.Cpus,
			Memory:    c.Memory,
			Running:   c.IsRunning(),
			SeedsSent: c.SeedsSent(),
		}
		if c.IsRunning() {
			a := c.Assignment()
			info.Engine = a.Engine.String()
			info.Coverage = a.CoverageMode.String()
			info.ExecMode = a.ExecMode.String()
		}
		out = append(out, info)
	}
	return out
}

// Alerts returns the defect report's current state.
func (b *Broker) Alerts() []AlertInfo {
	out := make([]AlertInfo, 0, len(b.rep.Alerts))
	for _, a := range b.rep.Alerts {
		out = append(out, AlertInfo{
			ID:        a.ID,
			Binding:   a.Binding,
			Kind:      a.Kind,
			File:      a.File,
			Line:      a.Line,
			Covered:   a.Covered,
			Validated: a.Validated,
		})
	}
	return out
}

// Stats returns the per-client telemetry snapshot.
func (b *Broker) Stats() map[string]stats.ClientStats {
	return b.statM.Snapshot()
}
