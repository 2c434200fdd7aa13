package filters

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics holds the Prometheus collectors for dispatched invocations.
type Metrics struct {
	latency *prometheus.HistogramVec
	events  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of advised invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class", "operation", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.latency, m.events)
	return m
}

// Filter times the inner layers and records the outcome.
func (m *Metrics) Filter() advisor.Filter {
	return advisor.FilterFunc(func(ctx context.Context, inv *advisor.Invocation, next advisor.Next) (any, error) {
		start := time.Now()
		v, err := next(ctx)
		outcome := OutcomeOK
		switch {
		case advisor.IsRejected(err):
			outcome = OutcomeRejected
		case err != nil:
			outcome = OutcomeError
		}
		m.latency.WithLabelValues(inv.Class.Name, inv.Operation.Method, outcome).
			Observe(time.Since(start).Seconds())
		return v, err
	})
}

// Observe counts every event published on bus.
func (m *Metrics) Observe(bus *engine.Bus) *engine.Subscription {
	return bus.Subscribe("metrics", func(e engine.Event) {
		m.events.WithLabelValues(string(e.Type)).Inc()
	})
}

func buildMetrics(_ string, options map[string]any, deps Deps) (matcher, error) {
	var opts struct{}
	if err := decode(options, &opts); err != nil {
		return nil, err
	}
	m := deps.Metrics
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry(), "prototype")
	}
	filter := m.Filter()
	return func(*index.OperationDescriptor) (advisor.Filter, bool) {
		return filter, true
	}, nil
}
