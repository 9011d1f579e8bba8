package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/aretw0/cftbridge/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

type instrumented struct {
	next     ports.SettingsStore
	duration *prometheus.HistogramVec
}

// NewMetricsMiddleware records the latency of every store operation in
// cftbridge_settings_store_duration_seconds, labelled by operation and result.
// Several stores may share one registerer.
func NewMetricsMiddleware(reg prometheus.Registerer) Middleware {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cftbridge_settings_store_duration_seconds",
		Help:    "Latency of settings store operations.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"op", "result"})

	if reg != nil {
		if err := reg.Register(duration); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				duration = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}

	return func(next ports.SettingsStore) ports.SettingsStore {
		return &instrumented{next: next, duration: duration}
	}
}

func (m *instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrSettingsNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	m.duration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (m *instrumented) Save(ctx context.Context, settings *domain.Settings) error {
	start := time.Now()
	err := m.next.Save(ctx, settings)
	m.observe("save", start, err)
	return err
}

func (m *instrumented) Load(ctx context.Context, projectID string) (*domain.Settings, error) {
	start := time.Now()
	settings, err := m.next.Load(ctx, projectID)
	m.observe("load", start, err)
	return settings, err
}

func (m *instrumented) Delete(ctx context.Context, projectID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, projectID)
	m.observe("delete", start, err)
	return err
}

func (m *instrumented) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := m.next.List(ctx)
	m.observe("list", start, err)
	return ids, err
}
