package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors recorded by WithMetrics.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	lookupsTotal      *prometheus.CounterVec
}

// NewMetrics creates the cache collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Total number of cache backend operations",
			},
			[]string{"store", "operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Latency of cache backend operations",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"store", "operation"},
		),
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Cache loads by result (hit or miss)",
			},
			[]string{"store", "result"},
		),
	}
	for _, c := range []prometheus.Collector{m.operationsTotal, m.operationDuration, m.lookupsTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type meteredBackend struct {
	Backend
	metrics *Metrics
	store   string
}

// WithMetrics wraps b so every operation is counted and timed under the
// given store label.
func WithMetrics(b Backend, m *Metrics, store string) Backend {
	return &meteredBackend{Backend: b, metrics: m, store: store}
}

func (m *meteredBackend) observe(op string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.operationsTotal.WithLabelValues(m.store, op, status).Inc()
	m.metrics.operationDuration.WithLabelValues(m.store, op).Observe(time.Since(started).Seconds())
}

func (m *meteredBackend) Save(ctx context.Context, id string, payload []byte, tags []string, opts ...SaveOption) error {
	started := time.Now()
	err := m.Backend.Save(ctx, id, payload, tags, opts...)
	m.observe("save", started, err)
	return err
}

func (m *meteredBackend) Load(ctx context.Context, id string) ([]byte, bool, error) {
	started := time.Now()
	payload, found, err := m.Backend.Load(ctx, id)
	m.observe("load", started, err)
	if err == nil {
		result := "miss"
		if found {
			result = "hit"
		}
		m.metrics.lookupsTotal.WithLabelValues(m.store, result).Inc()
	}
	return payload, found, err
}

func (m *meteredBackend) Remove(ctx context.Context, id string) error {
	started := time.Now()
	err := m.Backend.Remove(ctx, id)
	m.observe("remove", started, err)
	return err
}

func (m *meteredBackend) InvalidateTags(ctx context.Context, tags []string) error {
	started := time.Now()
	err := m.Backend.InvalidateTags(ctx, tags)
	m.observe("invalidate_tags", started, err)
	return err
}

func (m *meteredBackend) InvalidateExpired(ctx context.Context) error {
	started := time.Now()
	err := m.Backend.InvalidateExpired(ctx)
	m.observe("invalidate_expired", started, err)
	return err
}

func (m *meteredBackend) Clear(ctx context.Context) error {
	started := time.Now()
	err := m.Backend.Clear(ctx)
	m.observe("clear", started, err)
	return err
}
