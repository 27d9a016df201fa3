package storage

import (
	"database/sql"
	"time"

	"ApartmentHunter/internal/domain"
)

type listingRow struct {
	Fingerprint  string          `db:"fingerprint"`
	Source       string          `db:"source"`
	Title        string          `db:"title"`
	Location     string          `db:"location"`
	Description  string          `db:"description"`
	Price        sql.NullInt64   `db:"price"`
	Rooms        sql.NullFloat64 `db:"rooms"`
	PetsAllowed  string          `db:"pets_allowed"`
	URL          string          `db:"url"`
	FirstSeenAt  time.Time       `db:"first_seen_at"`
	LastSeenAt   time.Time       `db:"last_seen_at"`
	PassedFilter bool            `db:"passed_filter"`
}

func (r listingRow) toDomain() domain.Listing {
	l := domain.Listing{
		Fingerprint:  r.Fingerprint,
		Source:       r.Source,
		Title:        r.Title,
		Location:     r.Location,
		Description:  r.Description,
		PetsAllowed:  domain.ParsePetPolicy(r.PetsAllowed),
		URL:          r.URL,
		FirstSeenAt:  r.FirstSeenAt,
		LastSeenAt:   r.LastSeenAt,
		PassedFilter: r.PassedFilter,
	}
	if r.Price.Valid {
		l.Price = domain.IntPtr(int(r.Price.Int64))
	}
	if r.Rooms.Valid {
		l.Rooms = domain.FloatPtr(r.Rooms.Float64)
	}
	return l
}

type sessionRow struct {
	ID                  string    `db:"id"`
	StartedAt           time.Time `db:"started_at"`
	FinishedAt          time.Time `db:"finished_at"`
	Status              string    `db:"status"`
	ErrorMessage        string    `db:"error_message"`
	PagesFetched        int       `db:"pages_fetched"`
	FetchFailures       int       `db:"fetch_failures"`
	PagesUnrecognized   int       `db:"pages_unrecognized"`
	Extracted           int       `db:"extracted"`
	ExtractionErrors    int       `db:"extraction_errors"`
	NormalizationErrors int       `db:"normalization_errors"`
	NewListings         int       `db:"new_listings"`
	Duplicates          int       `db:"duplicates"`
	Passed              int       `db:"passed"`
	FilteredOut         int       `db:"filtered_out"`
	Notified            int       `db:"notified"`
	NotifyErrors        int       `db:"notify_errors"`
}

func (r sessionRow) toDomain() domain.ScanSession {
	return domain.ScanSession{
		ID:                  r.ID,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
		Status:              domain.SessionStatus(r.Status),
		Error:               r.ErrorMessage,
		PagesFetched:        r.PagesFetched,
		FetchFailures:       r.FetchFailures,
		PagesUnrecognized:   r.PagesUnrecognized,
		Extracted:           r.Extracted,
		ExtractionErrors:    r.ExtractionErrors,
		NormalizationErrors: r.NormalizationErrors,
		New:                 r.NewListings,
		Duplicates:          r.Duplicates,
		Passed:              r.Passed,
		FilteredOut:         r.FilteredOut,
		Notified:            r.Notified,
		NotifyErrors:        r.NotifyErrors,
	}
}
