// See:
//   https://godoc.org/github.com/prometheus/client_golang/prometheus/push#Pusher.Push
//   https://prometheus.io/docs/instrumenting/pushing/
package telemetry

import (
	"fmt"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "buildmatrix"

const (
	ChannelBuilt     = "built"
	ChannelUpToDate  = "up_to_date"
	ChannelNoVersion = "no_version"

	RegistryFound    = "found"
	RegistryNotFound = "not_found"
	RegistryError    = "error"
)

// Metrics is the set of counters updated during a single run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prom.Registry

	Channels        *prom.CounterVec
	PlatformJobs    *prom.CounterVec
	ProbeRuns       *prom.CounterVec
	ProbeDuration   *prom.HistogramVec
	RegistryQueries *prom.CounterVec
}

// NewMetrics returns a Metrics registered on its own registry, so that nothing
// from the default registry ends up in the exported file.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prom.NewRegistry(),
		Channels: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "channels_total",
			Help:      "Total number of channels processed, by outcome.",
		}, []string{"result"}),
		PlatformJobs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "platform_jobs_total",
			Help:      "Total number of platform jobs emitted.",
		}, []string{"tests"}),
		ProbeRuns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "probe_runs_total",
			Help:      "Total number of version probes run, by probe kind.",
		}, []string{"kind"}),
		ProbeDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Histogram of version probe latency (seconds).",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		RegistryQueries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "registry_queries_total",
			Help:      "Total number of published version lookups, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(m)

	return m
}

func (m *Metrics) ObserveChannel(result string) {
	if m == nil {
		return
	}
	m.Channels.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePlatformJob(testsEnabled bool) {
	if m == nil {
		return
	}
	m.PlatformJobs.WithLabelValues(strconv.FormatBool(testsEnabled)).Inc()
}

func (m *Metrics) ObserveProbe(kind string, startTime, endTime time.Time) {
	if m == nil {
		return
	}
	m.ProbeRuns.WithLabelValues(kind).Inc()
	m.ProbeDuration.WithLabelValues(kind).Observe(endTime.Sub(startTime).Seconds())
}

func (m *Metrics) ObserveRegistryQuery(outcome string) {
	if m == nil {
		return
	}
	m.RegistryQueries.WithLabelValues(outcome).Inc()
}

// Describe sends the super-set of all possible descriptors of metrics
// collected by this Collector to the provided channel and returns once
// the last descriptor has been sent.
func (m *Metrics) Describe(ch chan<- *prom.Desc) {
	m.Channels.Describe(ch)
	m.PlatformJobs.Describe(ch)
	m.ProbeRuns.Describe(ch)
	m.ProbeDuration.Describe(ch)
	m.RegistryQueries.Describe(ch)
}

// Collect is called by the Prometheus registry when collecting
// metrics. The implementation sends each collected metric via the
// provided channel and returns once the last metric has been sent.
func (m *Metrics) Collect(ch chan<- prom.Metric) {
	m.Channels.Collect(ch)
	m.PlatformJobs.Collect(ch)
	m.ProbeRuns.Collect(ch)
	m.ProbeDuration.Collect(ch)
	m.RegistryQueries.Collect(ch)
}

// Gatherer exposes the private registry the metrics are registered on.
func (m *Metrics) Gatherer() prom.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics to path in the format read by the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %v", path, err)
	}
	return nil
}

// pushBase can be something like http://pushgateway:9091 (for pushgateway)
// or http://pushgateway:9091/api/ui (for weaveworks/prom-aggregation-gateway)
func (m *Metrics) Push(pushBase, job string) error {
	return push.New(pushBase, job).
		Gatherer(m.registry).
		Push()
}
