/*
PURPOSE:
  Prometheus counters for one sweep: units by outcome, records, parse
  warnings, invocation latency and persist failures.

REQUIREMENTS:
  Implementation-discovered:
  - Each Runner owns its registry so tests and repeated runs never collide
    on the default registerer.
  - Output is a node_exporter textfile; the tool never listens for scrapes.

ARCHITECTURE INTEGRATION:
  - Updated by: internal/engine/runner.go
  - Written by: engine.Run when metrics_file is set

ERROR HANDLING:
  - WriteTextfile returns the write error; the caller logs it and carries on.
*/

package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/daryltucker/packbench/internal/model"
)

// Metrics counts sweep progress in a per-run registry.
type Metrics struct {
	registry        *prometheus.Registry
	units           *prometheus.CounterVec
	records         prometheus.Counter
	warnings        prometheus.Counter
	invocations     *prometheus.HistogramVec
	persistFailures prometheus.Counter
}

// NewMetrics registers the sweep metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		units: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "packbench",
				Name:      "units_total",
				Help:      "Units of work finished, by mode and terminal state",
			},
			[]string{"mode", "state"},
		),
		records: f.NewCounter(prometheus.CounterOpts{
			Namespace: "packbench",
			Name:      "records_total",
			Help:      "Benchmark records committed to the result set",
		}),
		warnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: "packbench",
			Name:      "parse_warnings_total",
			Help:      "Output lines or invocations that produced no record",
		}),
		invocations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "packbench",
				Name:      "invocation_seconds",
				Help:      "Wall-clock time of one solver invocation",
				Buckets:   prometheus.ExponentialBuckets(0.05, 4, 10),
			},
			[]string{"mode"},
		),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "packbench",
			Name:      "persist_failures_total",
			Help:      "Failed attempts to write the result file",
		}),
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeInvocation(mode model.Mode, d time.Duration) {
	m.invocations.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func (m *Metrics) finishUnit(u *model.Unit) {
	m.units.WithLabelValues(string(u.Request.Mode()), string(u.State)).Inc()
	m.warnings.Add(float64(len(u.Warnings)))
}
