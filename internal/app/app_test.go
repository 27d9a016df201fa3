//go:build cgo

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ApartmentHunter/internal/config"
	"ApartmentHunter/internal/domain"
)

const searchPage = `
<html><body>
<ul>
  <li>
    <a href="/realestate/item/abc123?opened-from=feed">
      <span class="feed-item-title">3 חדרים בבת גלים</span>
      <span class="item-subtitle">בת גלים, חיפה</span>
      <span class="price">₪3,500</span>
      <span class="rooms">3 חדרים</span>
    </a>
  </li>
  <li>
    <a href="/realestate/item/def456">
      <div class="title">דירת גן בנווה שאנן</div>
      <div>מחיר לפי בקשה</div>
      <div>2.5 חד'</div>
    </a>
  </li>
</ul>
</body></html>`

func testConfig(serverURL string) config.Config {
	return config.Config{
		Logging:  config.LoggingConfig{Level: "error"},
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"},
		Fetch:    config.FetchConfig{Timeout: 2 * time.Second},
		Filters:  domain.FilterCriteria{PriceMin: domain.IntPtr(2500), PriceMax: domain.IntPtr(4000)},
		Sites: []config.SiteConfig{{
			Name:      "yad2",
			Scanner:   "yad2",
			BaseURL:   serverURL,
			SearchURL: serverURL + "/realestate/rent",
			Params:    map[string]string{"city": "4000"},
		}},
	}
}

func TestScanEndToEnd(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(searchPage))
	}))
	defer srv.Close()

	ctx := context.Background()
	application, err := New(ctx, testConfig(srv.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	first, err := application.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, first.Status)
	assert.Equal(t, 1, first.PagesFetched)
	assert.Equal(t, 2, first.New)
	assert.Equal(t, 1, first.Passed)
	assert.Equal(t, 1, first.FilteredOut)
	assert.Equal(t, 1, first.Notified)

	second, err := application.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, 0, second.Notified)

	summary, recent, err := application.Status(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalListings)
	assert.Equal(t, 1, summary.PassedListings)
	assert.Equal(t, 2, summary.Sessions)
	require.Len(t, recent, 1)
	assert.Equal(t, "3 חדרים בבת גלים", recent[0].Title)

	checks := application.SelfCheck(ctx, false)
	assert.True(t, Healthy(checks), "%+v", checks)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.Database.Driver = "oracle"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = testConfig("http://127.0.0.1:1")
	cfg.Scheduler.CronExpression = "whenever"
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestPurgeRequiresPositiveWindow(t *testing.T) {
	t.Parallel()

	application, err := New(context.Background(), testConfig("http://127.0.0.1:1"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	_, err = application.Purge(context.Background(), 0)
	assert.Error(t, err)

	n, err := application.Purge(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
