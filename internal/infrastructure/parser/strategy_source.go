package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"ApartmentHunter/internal/config"
	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/ports"
)

// StrategySource implements ports.TargetSource from config-defined sites and the
// active filter criteria, so the site pre-filters as much as it can.
type StrategySource struct {
	sites    []config.SiteConfig
	criteria domain.FilterCriteria
	logger   *slog.Logger
}

var _ ports.TargetSource = (*StrategySource)(nil)

// NewStrategySource wires config-defined sites with the cycle's criteria.
func NewStrategySource(sites []config.SiteConfig, criteria domain.FilterCriteria, log *slog.Logger) *StrategySource {
	return &StrategySource{
		sites:    sites,
		criteria: criteria,
		logger:   log,
	}
}

// Targets builds one search URL per configured location with a known
// neighborhood id, falling back to a single city-wide search, plus any fixed pages.
func (s *StrategySource) Targets(ctx context.Context) ([]domain.ScanTarget, error) {
	s.debug("plan targets", "sites", len(s.sites))

	var targets []domain.ScanTarget
	for _, site := range s.sites {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		siteTargets, err := s.siteTargets(site)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}
		s.debug("site planned", "site", site.Name, "scanner", site.Scanner, "targets", len(siteTargets))
		targets = append(targets, siteTargets...)
	}

	return targets, nil
}

func (s *StrategySource) siteTargets(site config.SiteConfig) ([]domain.ScanTarget, error) {
	var targets []domain.ScanTarget

	if site.SearchURL != "" {
		base := s.searchParams(site)

		for _, loc := range s.criteria.Locations {
			id, ok := site.Neighborhoods[loc]
			if !ok {
				s.warn("unknown neighborhood", "site", site.Name, "location", loc, "available", neighborhoodNames(site))
				continue
			}
			params := cloneValues(base)
			params.Set("neighborhood", id)
			params.Set("zoom", "14")
			u, err := buildSearchURL(site.SearchURL, params)
			if err != nil {
				return nil, err
			}
			targets = append(targets, domain.ScanTarget{Source: site.Name, Extractor: site.Scanner, URL: u, Label: loc})
		}

		if len(targets) == 0 {
			u, err := buildSearchURL(site.SearchURL, base)
			if err != nil {
				return nil, err
			}
			targets = append(targets, domain.ScanTarget{Source: site.Name, Extractor: site.Scanner, URL: u, Label: "city-wide"})
		}
	}

	for _, page := range site.Pages {
		targets = append(targets, domain.ScanTarget{Source: site.Name, Extractor: site.Scanner, URL: page.URL, Label: page.Name})
	}

	return targets, nil
}

func (s *StrategySource) searchParams(site config.SiteConfig) url.Values {
	params := url.Values{}
	for k, v := range site.Params {
		params.Set(k, v)
	}
	c := s.criteria
	if c.PriceMin != nil {
		params.Set("minPrice", strconv.Itoa(*c.PriceMin))
	}
	if c.PriceMax != nil {
		params.Set("maxPrice", strconv.Itoa(*c.PriceMax))
	}
	if c.RoomsMin != nil {
		params.Set("minRooms", strconv.FormatFloat(*c.RoomsMin, 'f', -1, 64))
	}
	if c.RoomsMax != nil {
		params.Set("maxRooms", strconv.FormatFloat(*c.RoomsMax, 'f', -1, 64))
	}
	return params
}

func buildSearchURL(base string, params url.Values) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid search url %s: %w", base, err)
	}

	query := parsed.Query()
	for k, vs := range params {
		for _, v := range vs {
			query.Set(k, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = slices.Clone(vs)
	}
	return out
}

func neighborhoodNames(site config.SiteConfig) string {
	names := make([]string, 0, len(site.Neighborhoods))
	for name := range site.Neighborhoods {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
