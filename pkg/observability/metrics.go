package observability

import (
	"context"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var allStates = []domain.State{
	domain.StateDisconnected,
	domain.StateConnecting,
	domain.StateReady,
	domain.StateFlushing,
	domain.StateClosing,
}

// Metrics holds the Prometheus collectors for the bridge.
type Metrics struct {
	Messages      *prometheus.CounterVec
	MessageBytes  *prometheus.CounterVec
	AckWait       *prometheus.HistogramVec
	AckFailures   *prometheus.CounterVec
	Flushes       *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	Pending       *prometheus.GaugeVec
	State         *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cftbridge_messages_total",
				Help: "Total number of messages written to the worker",
			},
			[]string{"command"},
		),
		MessageBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cftbridge_message_bytes_total",
				Help: "Total bytes written to the worker",
			},
			[]string{"command"},
		),
		AckWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cftbridge_ack_wait_seconds",
				Help:    "Time spent waiting for worker acknowledgments",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"command"},
		),
		AckFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cftbridge_ack_failures_total",
				Help: "Acknowledgment waits that ended in an error",
			},
			[]string{"kind"},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cftbridge_flushes_total",
				Help: "Total number of flushes",
			},
			[]string{"mode", "result"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cftbridge_flush_duration_seconds",
				Help: "Duration of flushes",
			},
			[]string{"mode"},
		),
		Pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cftbridge_pending_records",
				Help: "Records waiting in the change queue",
			},
			[]string{"project"},
		),
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cftbridge_state",
				Help: "Current coordinator state (1 for the active state)",
			},
			[]string{"project", "state"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Messages, m.MessageBytes, m.AckWait, m.AckFailures,
		m.Flushes, m.FlushDuration, m.Pending, m.State,
	}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, projectID string, _, to domain.State) {
			for _, s := range allStates {
				v := 0.0
				if s == to {
					v = 1
				}
				m.State.WithLabelValues(projectID, s.String()).Set(v)
			}
		},
		OnMessage: func(_ context.Context, e *domain.MessageEvent) {
			m.Messages.WithLabelValues(e.Command).Inc()
			m.MessageBytes.WithLabelValues(e.Command).Add(float64(e.Bytes))
		},
		OnAck: func(_ context.Context, e *domain.AckEvent) {
			m.AckWait.WithLabelValues(e.Command).Observe(e.Wait.Seconds())
			if e.Err != nil {
				m.AckFailures.WithLabelValues(domain.KindOf(e.Err).String()).Inc()
			}
		},
		OnFlush: func(_ context.Context, e *domain.FlushEvent) {
			mode := "incremental"
			if e.FullResync {
				mode = "full"
			}
			result := "ok"
			if e.Err != nil {
				result = domain.KindOf(e.Err).String()
			}
			m.Flushes.WithLabelValues(mode, result).Inc()
			m.FlushDuration.WithLabelValues(mode).Observe(e.Duration.Seconds())
		},
		OnPending: func(_ context.Context, projectID string, n int) {
			m.Pending.WithLabelValues(projectID).Set(float64(n))
		},
	}
}
