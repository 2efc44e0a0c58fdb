// Package metrics defines the prometheus metrics exported by iperfer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for both roles. The "role" label is "active" or "passive".
var (
	ActiveRuns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "iperfer_active_runs",
			Help: "A gauge of measurements currently running.",
		},
		[]string{"role"})
	RunCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iperfer_runs_total",
			Help: "Number of measurements run, by how they ended.",
		},
		[]string{"role", "result"},
	)
	PhaseCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iperfer_phases_total",
			Help: "Number of probe and stream phases, by outcome.",
		},
		[]string{"role", "phase", "outcome"},
	)
	EstablishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iperfer_establish_errors_total",
			Help: "Number of failures to establish the measurement connection.",
		},
		[]string{"role", "op"},
	)
	ProbeRTT = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "iperfer_probe_rtt_seconds",
			Help: "A histogram of probe round trip times.",
			Buckets: []float64{
				.0001, .00025, .0005,
				.001, .0025, .005,
				.01, .025, .05,
				.1, .25, .5,
				1},
		},
		[]string{"role"},
	)
	Rate = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "iperfer_rate_mbps",
			Help: "A histogram of measured throughput.",
			Buckets: []float64{
				.1, .15, .25, .4, .6,
				1, 1.5, 2.5, 4, 6,
				10, 15, 25, 40, 60,
				100, 150, 250, 400, 600,
				1000, 1500, 2500, 4000, 6000,
				10000},
		},
		[]string{"role"},
	)
	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iperfer_bytes_total",
			Help: "Number of payload bytes sent or received during stream phases.",
		},
		[]string{"role"},
	)
)
