package scanner

import (
	"fmt"
	"iter"

	"ApartmentHunter/internal/domain"
)

// Entries is a single-pass sequence of extracted candidates. A non-nil error
// belongs to one entry only; consumers skip it and keep ranging.
type Entries = iter.Seq2[domain.Candidate, error]

// Extractor turns one fetched page into candidate listings for a specific site.
// Extract returns domain.ErrPageUnrecognized (and no entries) when the page is
// not a listing page at all.
type Extractor interface {
	Name() string
	Extract(fragment domain.RawFragment) (Entries, error)
}

// Registry keeps a mapping from extractor names to their implementations.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: map[string]Extractor{}}
}

// Register adds or replaces an extractor implementation.
func (r *Registry) Register(extractor Extractor) {
	if r.extractors == nil {
		r.extractors = map[string]Extractor{}
	}
	r.extractors[extractor.Name()] = extractor
}

// Resolve returns an extractor by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Extractor, error) {
	if extractor, ok := r.extractors[name]; ok {
		return extractor, nil
	}
	return nil, fmt.Errorf("extractor %s is not registered", name)
}
