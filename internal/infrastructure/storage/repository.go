package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/ports"
)

const (
	listingsTable      = "listings"
	sessionsTable      = "scan_sessions"
	notificationsTable = "notifications"
)

var listingColumns = []string{
	"fingerprint", "source", "title", "location", "description", "price", "rooms",
	"pets_allowed", "url", "first_seen_at", "last_seen_at", "passed_filter",
}

var sessionColumns = []string{
	"id", "started_at", "finished_at", "status", "error_message",
	"pages_fetched", "fetch_failures", "pages_unrecognized", "extracted",
	"extraction_errors", "normalization_errors", "new_listings", "duplicates",
	"passed", "filtered_out", "notified", "notify_errors",
}

// Repository persists listings, scan sessions and notification attempts
// through database/sql, on either Postgres or SQLite.
type Repository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

var _ ports.ListingStore = (*Repository)(nil)

// Open connects to the configured database, verifies it and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	if driver == "sqlite3" {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One connection keeps writers serialized and ":memory:" databases shared.
		db.SetMaxOpenConns(1)
	}

	repo := NewRepository(db)
	if err := repo.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepository wires an sqlx.DB; placeholders follow the driver name.
func NewRepository(db *sqlx.DB) *Repository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if db.DriverName() == "postgres" {
		placeholder = sq.Dollar
	}
	return &Repository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(placeholder)}
}

// Close releases the underlying pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrStoreFailure, err)
	}
	return nil
}

// Migrate creates tables and indexes when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", domain.ErrStoreFailure, err)
		}
	}
	return nil
}

// Exists reports whether a listing with the fingerprint is stored.
func (r *Repository) Exists(ctx context.Context, fingerprint string) (bool, error) {
	query, args, err := r.sb.Select("COUNT(1)").From(listingsTable).Where(sq.Eq{"fingerprint": fingerprint}).ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: build exists: %w", domain.ErrStoreFailure, err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", domain.ErrStoreFailure, fingerprint, err)
	}
	return count > 0, nil
}

// Upsert inserts a new listing or, for a known fingerprint, refreshes last_seen_at.
// Both paths run inside one transaction.
func (r *Repository) Upsert(ctx context.Context, listing domain.Listing) (result domain.UpsertResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: begin upsert: %w", domain.ErrStoreFailure, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := r.sb.Select("COUNT(1)").From(listingsTable).Where(sq.Eq{"fingerprint": listing.Fingerprint}).ToSql()
	if err != nil {
		return "", fmt.Errorf("%w: build lookup: %w", domain.ErrStoreFailure, err)
	}
	var count int
	if err = tx.GetContext(ctx, &count, query, args...); err != nil {
		return "", fmt.Errorf("%w: lookup %s: %w", domain.ErrStoreFailure, listing.Fingerprint, err)
	}

	if count > 0 {
		query, args, err = r.sb.Update(listingsTable).
			Set("last_seen_at", listing.LastSeenAt.UTC()).
			Where(sq.Eq{"fingerprint": listing.Fingerprint}).
			ToSql()
		result = domain.Updated
	} else {
		query, args, err = r.sb.Insert(listingsTable).
			Columns(listingColumns...).
			Values(listingValues(listing)...).
			ToSql()
		result = domain.Inserted
	}
	if err != nil {
		return "", fmt.Errorf("%w: build upsert: %w", domain.ErrStoreFailure, err)
	}

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", domain.ErrStoreFailure, result, listing.Fingerprint, err)
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit upsert: %w", domain.ErrStoreFailure, err)
	}
	return result, nil
}

// RecordSession stores the finalized counters of a scan cycle.
func (r *Repository) RecordSession(ctx context.Context, s domain.ScanSession) error {
	query, args, err := r.sb.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			s.ID, s.StartedAt.UTC(), s.FinishedAt.UTC(), string(s.Status), s.Error,
			s.PagesFetched, s.FetchFailures, s.PagesUnrecognized, s.Extracted,
			s.ExtractionErrors, s.NormalizationErrors, s.New, s.Duplicates,
			s.Passed, s.FilteredOut, s.Notified, s.NotifyErrors,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build session insert: %w", domain.ErrStoreFailure, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: record session %s: %w", domain.ErrStoreFailure, s.ID, err)
	}
	return nil
}

// RecordNotification logs one delivery attempt; sendErr nil means success.
func (r *Repository) RecordNotification(ctx context.Context, fingerprint, channel string, sendErr error) error {
	message := ""
	if sendErr != nil {
		message = sendErr.Error()
	}
	query, args, err := r.sb.Insert(notificationsTable).
		Columns("fingerprint", "channel", "sent_at", "success", "error_message").
		Values(fingerprint, channel, time.Now().UTC(), sendErr == nil, message).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build notification insert: %w", domain.ErrStoreFailure, err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: record notification %s: %w", domain.ErrStoreFailure, fingerprint, err)
	}
	return nil
}

// StatusSummary aggregates listing counts by source and recency plus price statistics.
func (r *Repository) StatusSummary(ctx context.Context, now time.Time) (domain.StatusSummary, error) {
	var summary domain.StatusSummary
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts := []struct {
		dest *int
		pred sq.Sqlizer
	}{
		{&summary.TotalListings, nil},
		{&summary.PassedListings, sq.Eq{"passed_filter": true}},
		{&summary.SeenToday, sq.GtOrEq{"last_seen_at": dayStart}},
		{&summary.SeenThisWeek, sq.GtOrEq{"last_seen_at": now.Add(-7 * 24 * time.Hour)}},
	}
	for _, c := range counts {
		b := r.sb.Select("COUNT(1)").From(listingsTable)
		if c.pred != nil {
			b = b.Where(c.pred)
		}
		if err := r.get(ctx, c.dest, b); err != nil {
			return domain.StatusSummary{}, err
		}
	}

	bySource := r.sb.Select("source", "COUNT(1) AS count").From(listingsTable).GroupBy("source").OrderBy("source")
	query, args, err := bySource.ToSql()
	if err != nil {
		return domain.StatusSummary{}, fmt.Errorf("%w: build by-source: %w", domain.ErrStoreFailure, err)
	}
	var rows []struct {
		Source string `db:"source"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return domain.StatusSummary{}, fmt.Errorf("%w: by-source: %w", domain.ErrStoreFailure, err)
	}
	for _, row := range rows {
		summary.BySource = append(summary.BySource, domain.SourceCount{Source: row.Source, Count: row.Count})
	}

	query, args, err = r.sb.Select("MIN(price)", "MAX(price)", "AVG(price)").
		From(listingsTable).Where(sq.NotEq{"price": nil}).ToSql()
	if err != nil {
		return domain.StatusSummary{}, fmt.Errorf("%w: build price stats: %w", domain.ErrStoreFailure, err)
	}
	var minPrice, maxPrice sql.NullInt64
	var avgPrice sql.NullFloat64
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&minPrice, &maxPrice, &avgPrice); err != nil {
		return domain.StatusSummary{}, fmt.Errorf("%w: price stats: %w", domain.ErrStoreFailure, err)
	}
	if minPrice.Valid {
		summary.PriceMin = domain.IntPtr(int(minPrice.Int64))
	}
	if maxPrice.Valid {
		summary.PriceMax = domain.IntPtr(int(maxPrice.Int64))
	}
	if avgPrice.Valid {
		summary.PriceAvg = domain.FloatPtr(avgPrice.Float64)
	}

	if err := r.get(ctx, &summary.Sessions, r.sb.Select("COUNT(1)").From(sessionsTable)); err != nil {
		return domain.StatusSummary{}, err
	}
	if summary.Sessions > 0 {
		last, err := r.lastSession(ctx)
		if err != nil {
			return domain.StatusSummary{}, err
		}
		summary.LastSession = &last
	}

	return summary, nil
}

// RecentListings returns the most recently seen listings, newest first.
func (r *Repository) RecentListings(ctx context.Context, limit int, passedOnly bool) ([]domain.Listing, error) {
	b := r.sb.Select(listingColumns...).From(listingsTable).OrderBy("last_seen_at DESC")
	if passedOnly {
		b = b.Where(sq.Eq{"passed_filter": true})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build recent: %w", domain.ErrStoreFailure, err)
	}

	var rows []listingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: recent listings: %w", domain.ErrStoreFailure, err)
	}
	listings := make([]domain.Listing, 0, len(rows))
	for _, row := range rows {
		listings = append(listings, row.toDomain())
	}
	return listings, nil
}

// Purge deletes listings not seen since the cutoff. It is an administrative
// operation; the scan pipeline never deletes.
func (r *Repository) Purge(ctx context.Context, seenBefore time.Time) (int64, error) {
	query, args, err := r.sb.Delete(listingsTable).Where(sq.Lt{"last_seen_at": seenBefore.UTC()}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: build purge: %w", domain.ErrStoreFailure, err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %w", domain.ErrStoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: purge rows affected: %w", domain.ErrStoreFailure, err)
	}
	return n, nil
}

func (r *Repository) get(ctx context.Context, dest any, b sq.SelectBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%w: build query: %w", domain.ErrStoreFailure, err)
	}
	if err := r.db.GetContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrStoreFailure, query, err)
	}
	return nil
}

func (r *Repository) lastSession(ctx context.Context) (domain.ScanSession, error) {
	query, args, err := r.sb.Select(sessionColumns...).From(sessionsTable).OrderBy("started_at DESC").Limit(1).ToSql()
	if err != nil {
		return domain.ScanSession{}, fmt.Errorf("%w: build last session: %w", domain.ErrStoreFailure, err)
	}
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ScanSession{}, nil
		}
		return domain.ScanSession{}, fmt.Errorf("%w: last session: %w", domain.ErrStoreFailure, err)
	}
	return row.toDomain(), nil
}

func listingValues(l domain.Listing) []any {
	var price sql.NullInt64
	if l.Price != nil {
		price = sql.NullInt64{Int64: int64(*l.Price), Valid: true}
	}
	var rooms sql.NullFloat64
	if l.Rooms != nil {
		rooms = sql.NullFloat64{Float64: *l.Rooms, Valid: true}
	}
	pets := l.PetsAllowed
	if pets == "" {
		pets = domain.PetsUnknown
	}
	return []any{
		l.Fingerprint, l.Source, l.Title, l.Location, l.Description, price, rooms,
		string(pets), l.URL, l.FirstSeenAt.UTC(), l.LastSeenAt.UTC(), l.PassedFilter,
	}
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir %s: %w", dir, err)
		}
	}
	return nil
}
