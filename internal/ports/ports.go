package ports

import (
	"context"
	"time"

	"ApartmentHunter/internal/domain"
)

// Fetcher downloads a single page, applying its own timeout and retry budget.
// Any failure is reported as domain.ErrFetchFailure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (domain.RawFragment, error)
}

// TargetSource plans the pages to fetch in one cycle.
type TargetSource interface {
	Targets(ctx context.Context) ([]domain.ScanTarget, error)
}

// ListingStore is the persistence boundary for listings and scan sessions.
type ListingStore interface {
	Exists(ctx context.Context, fingerprint string) (bool, error)
	Upsert(ctx context.Context, listing domain.Listing) (domain.UpsertResult, error)
	RecordSession(ctx context.Context, session domain.ScanSession) error
	RecordNotification(ctx context.Context, fingerprint, channel string, sendErr error) error
	StatusSummary(ctx context.Context, now time.Time) (domain.StatusSummary, error)
	RecentListings(ctx context.Context, limit int, passedOnly bool) ([]domain.Listing, error)
	Purge(ctx context.Context, seenBefore time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// Notifier delivers a qualifying listing to the user.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, listing domain.Listing) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
