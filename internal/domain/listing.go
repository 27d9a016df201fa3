package domain

import "time"

// RawFragment is a fetched page body together with the URL it came from.
type RawFragment struct {
	URL    string
	Source string
	Body   []byte
}

// Candidate holds free-text fields pulled out of markup before normalization.
type Candidate struct {
	Title       string
	PriceText   string
	RoomsText   string
	Location    string
	Description string
	URL         string
	Source      string
}

// PetPolicy is a tri-state pet policy.
type PetPolicy string

const (
	PetsUnknown    PetPolicy = "unknown"
	PetsAllowed    PetPolicy = "allowed"
	PetsDisallowed PetPolicy = "disallowed"
)

// ParsePetPolicy maps config/storage values onto a PetPolicy; anything unrecognized is unknown.
func ParsePetPolicy(value string) PetPolicy {
	switch PetPolicy(value) {
	case PetsAllowed:
		return PetsAllowed
	case PetsDisallowed:
		return PetsDisallowed
	default:
		return PetsUnknown
	}
}

// Listing is the canonical, persisted rental listing.
// Price and Rooms are nil when the source text could not be parsed.
type Listing struct {
	Fingerprint  string
	Title        string
	Location     string
	Description  string
	Price        *int
	Rooms        *float64
	PetsAllowed  PetPolicy
	Source       string
	URL          string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	PassedFilter bool
}

// UpsertResult tells whether a store write created or refreshed a row.
type UpsertResult string

const (
	Inserted UpsertResult = "inserted"
	Updated  UpsertResult = "updated"
)

// ScanTarget is one page to fetch during a cycle.
type ScanTarget struct {
	Source    string
	Extractor string
	URL       string
	Label     string
}

// IntPtr and FloatPtr are small helpers for building optional fields.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
