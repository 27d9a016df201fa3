package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ApartmentHunter/internal/domain"
)

func TestObserveSession(t *testing.T) {
	t.Parallel()

	m := New()
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m.ObserveSession(domain.ScanSession{
		StartedAt:         start,
		FinishedAt:        start.Add(42 * time.Second),
		Status:            domain.SessionCompleted,
		PagesFetched:      3,
		PagesUnrecognized: 1,
		Extracted:         12,
		New:               4,
		Duplicates:        8,
		Passed:            2,
		FilteredOut:       2,
		ExtractionErrors:  1,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Pages.WithLabelValues("fetched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pages.WithLabelValues("unrecognized")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Listings.WithLabelValues("new")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.Listings.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("extraction")))
	assert.Equal(t, float64(start.Add(42*time.Second).Unix()), testutil.ToFloat64(m.LastSuccess))
}

func TestObserveSessionErroredLeavesLastSuccess(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveSession(domain.ScanSession{Status: domain.SessionErrored})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("errored")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastSuccess))
}

func TestObserveNotificationAndHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveNotification("telegram", nil)
	m.ObserveNotification("telegram", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("telegram", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("telegram", "error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "apartment_hunter_notifications_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveSession(domain.ScanSession{Status: domain.SessionCompleted})
	m.ObserveNotification("console", nil)
}
