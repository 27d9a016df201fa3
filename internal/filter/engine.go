package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"ApartmentHunter/internal/domain"
)

// Engine evaluates listings against one immutable criteria set.
// Rules run in a fixed order and the first failing rule is reported.
type Engine struct {
	criteria  domain.FilterCriteria
	locations []string
	required  []string
	excluded  []string
}

// NewEngine prepares lowered/folded copies of the criteria string lists.
func NewEngine(criteria domain.FilterCriteria) *Engine {
	if criteria.LocationMatch == "" {
		criteria.LocationMatch = domain.LocationMatchFolded
	}
	e := &Engine{criteria: criteria}
	for _, loc := range criteria.Locations {
		if loc = strings.TrimSpace(loc); loc != "" {
			e.locations = append(e.locations, e.locationKey(loc))
		}
	}
	e.required = lowerNonEmpty(criteria.KeywordsRequired)
	e.excluded = lowerNonEmpty(criteria.KeywordsExcluded)
	return e
}

// Criteria returns the criteria the engine was built with.
func (e *Engine) Criteria() domain.FilterCriteria {
	return e.criteria
}

// Evaluate runs price, rooms, location, pets, required and excluded keyword rules.
func (e *Engine) Evaluate(l domain.Listing) domain.Verdict {
	checks := []func(domain.Listing) domain.Verdict{
		e.checkPrice,
		e.checkRooms,
		e.checkLocation,
		e.checkPets,
		e.checkRequired,
		e.checkExcluded,
	}
	for _, check := range checks {
		if v := check(l); !v.Passed {
			return v
		}
	}
	return domain.Pass()
}

func (e *Engine) checkPrice(l domain.Listing) domain.Verdict {
	lo, hi := e.criteria.PriceMin, e.criteria.PriceMax
	if lo == nil && hi == nil {
		return domain.Pass()
	}
	if l.Price == nil {
		return domain.Fail(domain.ReasonPriceMissingWithBound, "")
	}
	price := *l.Price
	if lo != nil && price < *lo {
		return domain.Fail(domain.ReasonPriceBelowMin, strconv.Itoa(price))
	}
	if hi != nil && price > *hi {
		return domain.Fail(domain.ReasonPriceAboveMax, strconv.Itoa(price))
	}
	return domain.Pass()
}

func (e *Engine) checkRooms(l domain.Listing) domain.Verdict {
	lo, hi := e.criteria.RoomsMin, e.criteria.RoomsMax
	if lo == nil && hi == nil {
		return domain.Pass()
	}
	if l.Rooms == nil {
		return domain.Fail(domain.ReasonRoomsMissingWithBound, "")
	}
	rooms := *l.Rooms
	detail := strconv.FormatFloat(rooms, 'f', -1, 64)
	if lo != nil && rooms < *lo {
		return domain.Fail(domain.ReasonRoomsBelowMin, detail)
	}
	if hi != nil && rooms > *hi {
		return domain.Fail(domain.ReasonRoomsAboveMax, detail)
	}
	return domain.Pass()
}

func (e *Engine) checkLocation(l domain.Listing) domain.Verdict {
	if len(e.locations) == 0 {
		return domain.Pass()
	}
	location := e.locationKey(l.Location)
	for _, allowed := range e.locations {
		if strings.Contains(location, allowed) {
			return domain.Pass()
		}
	}
	return domain.Fail(domain.ReasonLocationNotAllowed, l.Location)
}

// checkPets never rejects a listing whose policy is unknown.
func (e *Engine) checkPets(l domain.Listing) domain.Verdict {
	want := domain.ParsePetPolicy(string(e.criteria.PetsRequired))
	if want == domain.PetsUnknown {
		return domain.Pass()
	}
	got := domain.ParsePetPolicy(string(l.PetsAllowed))
	if got == domain.PetsUnknown || got == want {
		return domain.Pass()
	}
	return domain.Fail(domain.ReasonPetsMismatch, fmt.Sprintf("want %s, listing %s", want, got))
}

func (e *Engine) checkRequired(l domain.Listing) domain.Verdict {
	if len(e.required) == 0 {
		return domain.Pass()
	}
	text := searchText(l)
	for _, kw := range e.required {
		if !strings.Contains(text, kw) {
			return domain.Fail(domain.ReasonKeywordMissing, kw)
		}
	}
	return domain.Pass()
}

func (e *Engine) checkExcluded(l domain.Listing) domain.Verdict {
	if len(e.excluded) == 0 {
		return domain.Pass()
	}
	text := searchText(l)
	for _, kw := range e.excluded {
		if strings.Contains(text, kw) {
			return domain.Fail(domain.ReasonKeywordExcluded, kw)
		}
	}
	return domain.Pass()
}

func (e *Engine) locationKey(s string) string {
	if e.criteria.LocationMatch == domain.LocationMatchExact {
		return s
	}
	return Fold(s)
}

// Fold lowercases and strips combining marks (Hebrew niqqud, Latin accents).
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	return strings.ToLower(strings.Join(strings.Fields(result), " "))
}

func searchText(l domain.Listing) string {
	return strings.ToLower(l.Title + " " + l.Description)
}

func lowerNonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
