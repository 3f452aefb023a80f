package notifications

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reportnotify/internal/types"
)

var _ Metrics = (*PrometheusMetrics)(nil)

// PrometheusMetrics exposes the same signals as CloudWatchMetrics for scraping.
type PrometheusMetrics struct {
	deliveries     *prometheus.CounterVec
	tokenRefreshes *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	notified       prometheus.Counter
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "report_notify",
				Name:      "deliveries_total",
				Help:      "Per-recipient deadline notification outcomes.",
			},
			[]string{"channel", "trigger", "result"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "report_notify",
				Name:      "token_refreshes_total",
				Help:      "Upstream OAuth token refresh attempts.",
			},
			[]string{"status"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "report_notify",
				Name:      "deadline_tick_duration_seconds",
				Help:      "Duration of deadline scheduler ticks.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		notified: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "report_notify",
				Name:      "requests_notified_total",
				Help:      "Report requests that received an automatic deadline notification.",
			},
		),
	}
	reg.MustRegister(m.deliveries, m.tokenRefreshes, m.tickDuration, m.notified)
	return m
}

func (m *PrometheusMetrics) RecordDelivery(_ context.Context, trigger string, result types.DispatchResult) {
	m.deliveries.WithLabelValues(types.ChannelZalo, trigger, string(result)).Inc()
}

func (m *PrometheusMetrics) RecordTokenRefresh(_ context.Context, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.tokenRefreshes.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) RecordTick(_ context.Context, duration time.Duration, notified int) {
	m.tickDuration.Observe(duration.Seconds())
	m.notified.Add(float64(notified))
}
