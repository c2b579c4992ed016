package avalanche

import (
	"errors"

	"github.com/cmwaters/cunner/tx"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dispatcher activity. A nil *Metrics records nothing.
type Metrics struct {
	Queries   prometheus.Counter
	Responses prometheus.Counter
	Decisions *prometheus.CounterVec
	Dropped   prometheus.Counter
	Resampled prometheus.Counter
	Abandoned prometheus.Counter
	Pending   prometheus.Gauge
}

// NewMetrics creates the avalanche collectors and registers them with reg
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "queries_total",
			Help:      "Number of queries fanned out to sampled peers",
		}),
		Responses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "responses_total",
			Help:      "Number of query responses delivered",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "decisions_total",
			Help:      "Number of transactions finalized by a node, by decided color",
		}, []string{"status"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "dropped_total",
			Help:      "Number of messages dropped because the recipient was unreachable",
		}),
		Resampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "resampled_rounds_total",
			Help:      "Number of expired rounds that were extended to additional peers",
		}),
		Abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "abandoned_rounds_total",
			Help:      "Number of expired rounds abandoned after every peer was sampled",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "avalanche",
			Name:      "pending_messages",
			Help:      "Number of messages waiting in the dispatcher queue",
		}),
	}
	if reg == nil {
		return m, nil
	}
	err := errors.Join(
		reg.Register(m.Queries),
		reg.Register(m.Responses),
		reg.Register(m.Decisions),
		reg.Register(m.Dropped),
		reg.Register(m.Resampled),
		reg.Register(m.Abandoned),
		reg.Register(m.Pending),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) query(peers int) {
	if m != nil {
		m.Queries.Add(float64(peers))
	}
}

func (m *Metrics) response() {
	if m != nil {
		m.Responses.Inc()
	}
}

func (m *Metrics) decision(status tx.Status) {
	if m != nil {
		m.Decisions.WithLabelValues(status.String()).Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) resampled() {
	if m != nil {
		m.Resampled.Inc()
	}
}

func (m *Metrics) abandoned() {
	if m != nil {
		m.Abandoned.Inc()
	}
}

func (m *Metrics) pending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}
