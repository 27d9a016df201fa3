// Package metrics exports scan-cycle counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ApartmentHunter/internal/domain"
)

const namespace = "apartment_hunter"

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	Sessions      *prometheus.CounterVec
	SessionLength prometheus.Histogram
	Pages         *prometheus.CounterVec
	Listings      *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	LastSuccess   prometheus.Gauge
}

// New registers collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_sessions_total",
			Help:      "Scan cycles by final status.",
		}, []string{"status"}),
		SessionLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of a scan cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		Pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Fetched pages by outcome.",
		}, []string{"outcome"}),
		Listings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_total",
			Help:      "Listings by pipeline outcome.",
		}, []string{"outcome"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Per-item errors by stage.",
		}, []string{"stage"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by channel and result.",
		}, []string{"channel", "result"}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_completed_scan_timestamp_seconds",
			Help:      "Unix time of the last completed scan cycle.",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSession folds the counters of a finished scan into the collectors.
// A nil receiver is a no-op.
func (m *Metrics) ObserveSession(s domain.ScanSession) {
	if m == nil {
		return
	}

	m.Sessions.WithLabelValues(string(s.Status)).Inc()
	if !s.FinishedAt.IsZero() && !s.StartedAt.IsZero() {
		m.SessionLength.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}

	m.Pages.WithLabelValues("fetched").Add(float64(s.PagesFetched))
	m.Pages.WithLabelValues("fetch_failed").Add(float64(s.FetchFailures))
	m.Pages.WithLabelValues("unrecognized").Add(float64(s.PagesUnrecognized))

	m.Listings.WithLabelValues("extracted").Add(float64(s.Extracted))
	m.Listings.WithLabelValues("new").Add(float64(s.New))
	m.Listings.WithLabelValues("duplicate").Add(float64(s.Duplicates))
	m.Listings.WithLabelValues("passed").Add(float64(s.Passed))
	m.Listings.WithLabelValues("filtered_out").Add(float64(s.FilteredOut))

	m.Errors.WithLabelValues("extraction").Add(float64(s.ExtractionErrors))
	m.Errors.WithLabelValues("normalization").Add(float64(s.NormalizationErrors))

	if s.Status == domain.SessionCompleted {
		m.LastSuccess.Set(float64(s.FinishedAt.Unix()))
	}
}

// ObserveNotification counts one delivery attempt.
func (m *Metrics) ObserveNotification(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}
