package domain

// LocationMatch selects how allowed locations are compared with a listing location.
type LocationMatch string

const (
	// LocationMatchFolded ignores case and combining marks (niqqud, accents).
	LocationMatchFolded LocationMatch = "folded"
	// LocationMatchExact is plain substring containment.
	LocationMatchExact LocationMatch = "exact"
)

// FilterCriteria is the user's search profile; nil bounds and empty lists mean no restriction.
type FilterCriteria struct {
	PriceMin         *int          `yaml:"price_min"`
	PriceMax         *int          `yaml:"price_max"`
	RoomsMin         *float64      `yaml:"rooms_min"`
	RoomsMax         *float64      `yaml:"rooms_max"`
	Locations        []string      `yaml:"locations"`
	PetsRequired     PetPolicy     `yaml:"pets_required"`
	KeywordsRequired []string      `yaml:"keywords_required"`
	KeywordsExcluded []string      `yaml:"keywords_excluded"`
	LocationMatch    LocationMatch `yaml:"location_match"`
}

// Reason names the filter rule that rejected a listing.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonPriceMissingWithBound Reason = "price_missing_with_bound"
	ReasonPriceBelowMin         Reason = "price_below_min"
	ReasonPriceAboveMax         Reason = "price_above_max"
	ReasonRoomsMissingWithBound Reason = "rooms_missing_with_bound"
	ReasonRoomsBelowMin         Reason = "rooms_below_min"
	ReasonRoomsAboveMax         Reason = "rooms_above_max"
	ReasonLocationNotAllowed    Reason = "location_not_allowed"
	ReasonPetsMismatch          Reason = "pets_mismatch"
	ReasonKeywordMissing        Reason = "keyword_missing"
	ReasonKeywordExcluded       Reason = "keyword_excluded"
)

// Verdict is the Filter Engine outcome. Detail carries the offending value for logs.
type Verdict struct {
	Passed bool
	Reason Reason
	Detail string
}

// Pass is the accepting verdict.
func Pass() Verdict { return Verdict{Passed: true} }

// Fail builds a rejecting verdict.
func Fail(reason Reason, detail string) Verdict {
	return Verdict{Passed: false, Reason: reason, Detail: detail}
}
