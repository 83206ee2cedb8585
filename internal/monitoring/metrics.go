// Package monitoring exposes Prometheus metrics for the bridge.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Bridge metrics
	BridgeConnections prometheus.Gauge
	Messages          *prometheus.CounterVec

	// Document metrics
	DocumentsOpen prometheus.Gauge

	// Settings metrics
	SettingsSaves   prometheus.Counter
	SettingsFetches prometheus.Counter

	// Export metrics
	ExportsTotal   prometheus.Counter
	ExportFailures prometheus.Counter

	// Picker metrics
	FilesAdded prometheus.Counter

	// Sandbox diagnostics relayed to the host
	SandboxErrors prometheus.Counter
}

// New creates a metrics collector registered against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BridgeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "midiview_bridge_connections",
				Help: "Number of live sandbox bridge connections",
			},
		),
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midiview_bridge_messages_total",
				Help: "Bridge messages by kind and direction",
			},
			[]string{"kind", "direction"},
		),
		DocumentsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "midiview_documents_open",
				Help: "Number of open documents",
			},
		),
		SettingsSaves: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "midiview_settings_saves_total",
				Help: "Total appearance settings saves",
			},
		),
		SettingsFetches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "midiview_settings_fetches_total",
				Help: "Total appearance settings fetches",
			},
		),
		ExportsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "midiview_exports_total",
				Help: "Total successful exports",
			},
		),
		ExportFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "midiview_export_failures_total",
				Help: "Total failed exports",
			},
		),
		FilesAdded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "midiview_files_added_total",
				Help: "Total files pushed to the sandbox from the picker",
			},
		),
		SandboxErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "midiview_sandbox_errors_total",
				Help: "Total error diagnostics relayed from the sandbox",
			},
		),
	}
}
