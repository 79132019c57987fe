package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BrokerMetrics exposes the campaign-level counters and gauges.
type BrokerMetrics struct {
	seedsReceived   *prometheus.CounterVec
	seedsShipped    prometheus.Counter
	clientsKnown    prometheus.Gauge
	clientsRunning  prometheus.Gauge
	alertsCovered   prometheus.Gauge
	alertsValidated prometheus.Gauge
}

// NewBrokerMetrics creates the broker collectors.
//
// Returns nil if metrics are not enabled (Init not called).
func NewBrokerMetrics() *BrokerMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &BrokerMetrics{
		seedsReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hivefuzz_seeds_received_total",
				Help: "Seeds received from clients by type and novelty",
			},
			[]string{"type", "novelty"}, // novelty: "new", "duplicate"
		),
		seedsShipped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "hivefuzz_seeds_shipped_total",
				Help: "Seeds re-broadcast to peer clients",
			},
		),
		clientsKnown: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "hivefuzz_clients",
				Help: "Clients known to the broker",
			},
		),
		clientsRunning: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "hivefuzz_clients_running",
				Help: "Clients currently holding an assignment",
			},
		),
		alertsCovered: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "hivefuzz_alerts_covered",
				Help: "Defect-report alerts covered so far",
			},
		),
		alertsValidated: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "hivefuzz_alerts_validated",
				Help: "Defect-report alerts validated so far",
			},
		),
	}
}

// RecordSeed counts one seed submission.
func (m *BrokerMetrics) RecordSeed(seedType string, isNew bool) {
	if m == nil {
		return
	}
	novelty := "duplicate"
	if isNew {
		novelty = "new"
	}
	m.seedsReceived.WithLabelValues(seedType, novelty).Inc()
}

// RecordShipped counts one seed re-broadcast to a peer.
func (m *BrokerMetrics) RecordShipped() {
	if m == nil {
		return
	}
	m.seedsShipped.Inc()
}

// SetClients updates the fleet gauges.
func (m *BrokerMetrics) SetClients(known, running int) {
	if m == nil {
		return
	}
	m.clientsKnown.Set(float64(known))
	m.clientsRunning.Set(float64(running))
}

// SetAlertProgress updates the alert gauges.
func (m *BrokerMetrics) SetAlertProgress(covered, validated int) {
	if m == nil {
		return
	}
	m.alertsCovered.Set(float64(covered))
	m.alertsValidated.Set(float64(validated))
}
