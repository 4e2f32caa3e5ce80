// Package metrics holds the Prometheus counters of the import pipelines. A
// lambda owns one Metrics per invocation and pushes it to a Pushgateway when
// the run ends, since nothing scrapes a lambda.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "floodsync"

// Outcomes of one unit of work.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeNotFound  = "not_found"
)

const defaultPushTimeout = 5 * time.Second

// Metrics is the set of pipeline counters registered on one registry.
type Metrics struct {
	registry  *prometheus.Registry
	valueSets *prometheus.CounterVec
	values    prometheus.Counter
	stations  *prometheus.CounterVec
	objects   *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		valueSets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "value_sets_total",
			Help:      "Telemetry value-sets handled, by outcome.",
		}, []string{"outcome"}),
		values: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "values_total",
			Help:      "Telemetry value rows inserted.",
		}),
		stations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "stations_total",
			Help:      "Stations handled by the threshold and display series syncs, by pipeline and outcome.",
		}, []string{"pipeline", "outcome"}),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "objects_written_total",
			Help:      "Objects written to the bucket, by prefix and outcome.",
		}, []string{"prefix", "outcome"}),
	}
	reg.MustRegister(m.valueSets, m.values, m.stations, m.objects)
	return m
}

// Registry exposes the underlying registry, for /metrics and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ValueSet counts one telemetry value-set.
func (m *Metrics) ValueSet(outcome string) {
	if m == nil {
		return
	}
	m.valueSets.WithLabelValues(outcome).Inc()
}

// Values counts inserted value rows.
func (m *Metrics) Values(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.values.Add(float64(n))
}

// Station counts one station of a sync pipeline.
func (m *Metrics) Station(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.stations.WithLabelValues(pipeline, outcome).Inc()
}

// Object counts one object write. prefix is the first key segment.
func (m *Metrics) Object(key string, err error) {
	if m == nil {
		return
	}
	prefix, _, _ := strings.Cut(key, "/")
	outcome := OutcomeProcessed
	if err != nil {
		outcome = OutcomeFailed
	}
	m.objects.WithLabelValues(prefix, outcome).Inc()
}

// ValueSetCounter exposes the counter for one outcome, for tests.
func (m *Metrics) ValueSetCounter(outcome string) prometheus.Counter {
	return m.valueSets.WithLabelValues(outcome)
}

// ValuesCounter exposes the value row counter, for tests.
func (m *Metrics) ValuesCounter() prometheus.Counter { return m.values }

// StationCounter exposes the counter for one pipeline and outcome, for tests.
func (m *Metrics) StationCounter(pipeline, outcome string) prometheus.Counter {
	return m.stations.WithLabelValues(pipeline, outcome)
}

// ObjectCounter exposes the object write counter for a key prefix, for tests.
func (m *Metrics) ObjectCounter(prefix, outcome string) prometheus.Counter {
	return m.objects.WithLabelValues(prefix, outcome)
}

// Pusher sends a registry to a Prometheus Pushgateway.
type Pusher struct {
	endpoint string
	job      string
}

// NewPusher returns nil when endpoint is empty; a nil Pusher is a no-op.
func NewPusher(endpoint, job string) *Pusher {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	return &Pusher{endpoint: endpoint, job: strings.TrimSpace(job)}
}

// Push sends the current values of m.
func (p *Pusher) Push(ctx context.Context, m *Metrics) error {
	if p == nil || m == nil {
		return nil
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return push.New(p.endpoint, p.job).Gatherer(m.registry).PushContext(ctx)
}
