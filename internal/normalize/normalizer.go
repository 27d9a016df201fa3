// Package normalize turns free-text candidate fields into typed listing values.
// Unparseable price or room text degrades to an absent value; only a record
// without both title and location is rejected.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"ApartmentHunter/internal/domain"
)

var (
	groupedCommaExpr = regexp.MustCompile(`^(\d{1,3}(?:,\d{3})+|\d+)(?:\.0{1,2})?$`)
	groupedDotExpr   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	roomsExpr        = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:חדרים|חדר|חד['׳]?|ח['׳]|rooms?\b)`)
	bareNumberExpr   = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
)

// priceNoise is removed from price text before the digits are validated.
var priceNoise = []string{
	"₪", `ש"ח`, "ש״ח", "שקלים", "שקל", "nis", "ils",
	"לחודש", "/חודש", "per month", "/month", "מחיר", ":",
}

var (
	defaultPetsAllow = []string{
		"מותר בעלי חיים", "בעלי חיים מותר", "מותר חיות", "חיות מחמד מותר",
		"ידידותי לחיות", "pets allowed", "pet friendly",
	}
	defaultPetsDeny = []string{
		"ללא בעלי חיים", "בלי בעלי חיים", "אסור בעלי חיים", "בעלי חיים אסור",
		"ללא חיות", "בלי חיות", "אין חיות", "no pets", "pets not allowed",
	}
)

// Options overrides the pet keyword sets; empty slices keep the defaults.
type Options struct {
	PetsAllowKeywords []string `yaml:"petsAllowKeywords"`
	PetsDenyKeywords  []string `yaml:"petsDenyKeywords"`
}

// Normalizer converts candidates into canonical listings.
type Normalizer struct {
	petsAllow []string
	petsDeny  []string
}

// New builds a Normalizer with default Hebrew/English pet keywords unless overridden.
func New(opts Options) *Normalizer {
	n := &Normalizer{petsAllow: defaultPetsAllow, petsDeny: defaultPetsDeny}
	if len(opts.PetsAllowKeywords) > 0 {
		n.petsAllow = lowerAll(opts.PetsAllowKeywords)
	}
	if len(opts.PetsDenyKeywords) > 0 {
		n.petsDeny = lowerAll(opts.PetsDenyKeywords)
	}
	return n
}

// Normalize maps a candidate onto a Listing without fingerprint or timestamps.
func (n *Normalizer) Normalize(c domain.Candidate) (domain.Listing, error) {
	title := CleanText(c.Title)
	location := CleanText(c.Location)
	if title == "" && location == "" {
		return domain.Listing{}, fmt.Errorf("%w: no title or location for %q", domain.ErrNormalization, c.URL)
	}

	description := CleanText(c.Description)

	return domain.Listing{
		Title:       title,
		Location:    location,
		Description: description,
		Price:       ParsePrice(c.PriceText),
		Rooms:       ParseRooms(c.RoomsText),
		PetsAllowed: n.ClassifyPets(description),
		Source:      c.Source,
		URL:         CanonicalURL(c.URL),
	}, nil
}

// ClassifyPets looks for deny keywords first, since several of them contain the allow phrases.
func (n *Normalizer) ClassifyPets(description string) domain.PetPolicy {
	text := strings.ToLower(description)
	if text == "" {
		return domain.PetsUnknown
	}
	for _, kw := range n.petsDeny {
		if strings.Contains(text, kw) {
			return domain.PetsDisallowed
		}
	}
	for _, kw := range n.petsAllow {
		if strings.Contains(text, kw) {
			return domain.PetsAllowed
		}
	}
	return domain.PetsUnknown
}

// CleanText trims, collapses whitespace runs and applies NFC so that visually
// identical Hebrew strings compare equal.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// ParsePrice accepts a single positive amount with optional currency and
// thousands separators. Ranges and "price on request" yield nil.
func ParsePrice(text string) *int {
	s := strings.ToLower(CleanText(text))
	for _, noise := range priceNoise {
		s = strings.ReplaceAll(s, noise, "")
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil
	}

	var digits string
	switch {
	case groupedDotExpr.MatchString(s):
		digits = strings.ReplaceAll(s, ".", "")
	case groupedCommaExpr.MatchString(s):
		digits = strings.ReplaceAll(groupedCommaExpr.FindStringSubmatch(s)[1], ",", "")
	default:
		return nil
	}

	value, err := strconv.Atoi(digits)
	if err != nil || value <= 0 {
		return nil
	}
	return &value
}

// ParseRooms accepts whole or half room counts ("3", "3.5", "2,5 חדרים").
func ParseRooms(text string) *float64 {
	s := strings.ToLower(CleanText(text))
	if s == "" {
		return nil
	}

	var token string
	if m := roomsExpr.FindStringSubmatch(s); m != nil {
		token = m[1]
	} else if bareNumberExpr.MatchString(s) {
		token = s
	} else {
		return nil
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
	if err != nil || value <= 0 {
		return nil
	}
	if doubled := value * 2; doubled != float64(int(doubled)) {
		return nil
	}
	return &value
}

// CanonicalURL lowercases scheme and host and drops the fragment.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(CleanText(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
