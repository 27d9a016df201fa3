package storage

// schema is portable between Postgres and SQLite; timestamps are always written in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		fingerprint   TEXT PRIMARY KEY,
		source        TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		location      TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		price         INTEGER,
		rooms         DOUBLE PRECISION,
		pets_allowed  TEXT NOT NULL DEFAULT 'unknown',
		url           TEXT NOT NULL DEFAULT '',
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at  TIMESTAMP NOT NULL,
		passed_filter BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen_at)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price)`,
	`CREATE TABLE IF NOT EXISTS scan_sessions (
		id                   TEXT PRIMARY KEY,
		started_at           TIMESTAMP NOT NULL,
		finished_at          TIMESTAMP NOT NULL,
		status               TEXT NOT NULL,
		error_message        TEXT NOT NULL DEFAULT '',
		pages_fetched        INTEGER NOT NULL DEFAULT 0,
		fetch_failures       INTEGER NOT NULL DEFAULT 0,
		pages_unrecognized   INTEGER NOT NULL DEFAULT 0,
		extracted            INTEGER NOT NULL DEFAULT 0,
		extraction_errors    INTEGER NOT NULL DEFAULT 0,
		normalization_errors INTEGER NOT NULL DEFAULT 0,
		new_listings         INTEGER NOT NULL DEFAULT 0,
		duplicates           INTEGER NOT NULL DEFAULT 0,
		passed               INTEGER NOT NULL DEFAULT 0,
		filtered_out         INTEGER NOT NULL DEFAULT 0,
		notified             INTEGER NOT NULL DEFAULT 0,
		notify_errors        INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_sessions_started ON scan_sessions(started_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		fingerprint   TEXT NOT NULL,
		channel       TEXT NOT NULL,
		sent_at       TIMESTAMP NOT NULL,
		success       BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_fingerprint ON notifications(fingerprint)`,
}
