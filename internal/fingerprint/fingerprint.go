package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/normalize"
)

const (
	delimiter = "\x1f"
	absent    = "-"
)

// Of returns the hex SHA-256 of the listing's identity fields:
// title, price, rooms, location and the URL without query or fragment.
func Of(listing domain.Listing) string {
	price := absent
	if listing.Price != nil {
		price = strconv.Itoa(*listing.Price)
	}
	rooms := absent
	if listing.Rooms != nil {
		rooms = strconv.FormatFloat(*listing.Rooms, 'f', 1, 64)
	}

	key := strings.Join([]string{
		normalize.CleanText(listing.Title),
		price,
		rooms,
		normalize.CleanText(listing.Location),
		urlPath(listing.URL),
	}, delimiter)

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// urlPath keeps host and path only, since sites append per-render tracking parameters.
func urlPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	return strings.ToLower(u.Host) + strings.TrimSuffix(u.EscapedPath(), "/")
}
