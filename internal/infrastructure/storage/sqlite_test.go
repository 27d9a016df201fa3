//go:build cgo

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ApartmentHunter/internal/domain"
)

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "data", "listings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	first := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	listing := sampleListing(first)

	result, err := repo.Upsert(ctx, listing)
	require.NoError(t, err)
	assert.Equal(t, domain.Inserted, result)

	later := first.Add(24 * time.Hour)
	listing.LastSeenAt = later
	listing.Title = "changed title is ignored"
	result, err = repo.Upsert(ctx, listing)
	require.NoError(t, err)
	assert.Equal(t, domain.Updated, result)

	exists, err := repo.Exists(ctx, listing.Fingerprint)
	require.NoError(t, err)
	assert.True(t, exists)

	recent, err := repo.RecentListings(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "3 חדרים בבת גלים", recent[0].Title)
	assert.True(t, recent[0].FirstSeenAt.Equal(first))
	assert.True(t, recent[0].LastSeenAt.Equal(later))
	require.NotNil(t, recent[0].Price)
	assert.Equal(t, 3500, *recent[0].Price)
	assert.Equal(t, domain.PetsAllowed, recent[0].PetsAllowed)

	session := domain.ScanSession{
		ID:         "session-1",
		StartedAt:  later,
		FinishedAt: later.Add(time.Minute),
		Status:     domain.SessionCompleted,
		Extracted:  1,
		Duplicates: 1,
	}
	require.NoError(t, repo.RecordSession(ctx, session))
	require.NoError(t, repo.RecordNotification(ctx, listing.Fingerprint, "console", nil))

	summary, err := repo.StatusSummary(ctx, later.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalListings)
	assert.Equal(t, 1, summary.PassedListings)
	assert.Equal(t, 1, summary.SeenToday)
	assert.Equal(t, 1, summary.Sessions)
	require.NotNil(t, summary.LastSession)
	assert.Equal(t, "session-1", summary.LastSession.ID)
	require.NotNil(t, summary.PriceAvg)
	assert.InDelta(t, 3500, *summary.PriceAvg, 0.001)
	assert.Equal(t, []domain.SourceCount{{Source: "yad2", Count: 1}}, summary.BySource)

	purged, err := repo.Purge(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 0, purged)
	purged, err = repo.Purge(ctx, later.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}
