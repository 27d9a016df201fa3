package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ApartmentHunter/internal/domain"
)

// CheckResult is the outcome of one self-check step.
type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// SelfCheck exercises each collaborator once. With offline set, the network
// fetch of the first search target is skipped.
func (a *Application) SelfCheck(ctx context.Context, offline bool) []CheckResult {
	results := []CheckResult{a.checkStore(ctx), a.checkFilter(), a.checkNotifiers()}
	if offline {
		results = append(results, CheckResult{Name: "scraper", OK: true, Detail: "skipped (offline)"})
	} else {
		results = append(results, a.checkScraper(ctx))
	}
	return results
}

// Healthy reports whether every check passed.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return false
		}
	}
	return true
}

func (a *Application) checkStore(ctx context.Context) CheckResult {
	if err := a.store.Ping(ctx); err != nil {
		return CheckResult{Name: "store", Detail: err.Error()}
	}
	summary, err := a.store.StatusSummary(ctx, time.Now())
	if err != nil {
		return CheckResult{Name: "store", Detail: err.Error()}
	}
	return CheckResult{Name: "store", OK: true, Detail: fmt.Sprintf("%d listings, %d sessions", summary.TotalListings, summary.Sessions)}
}

func (a *Application) checkFilter() CheckResult {
	sample := domain.Listing{
		Title:       "Test apartment",
		Price:       domain.IntPtr(3000),
		Rooms:       domain.FloatPtr(3),
		Location:    "בת גלים",
		Description: "Nice apartment",
		PetsAllowed: domain.PetsAllowed,
		Source:      "selfcheck",
	}
	v := a.engine.Evaluate(sample)
	detail := "sample listing passes"
	if !v.Passed {
		detail = fmt.Sprintf("sample listing rejected: %s %s", v.Reason, v.Detail)
	}
	return CheckResult{Name: "filter", OK: true, Detail: detail}
}

func (a *Application) checkNotifiers() CheckResult {
	names := make([]string, 0, len(a.notifiers))
	for _, n := range a.notifiers {
		names = append(names, n.Name())
	}
	return CheckResult{Name: "notifiers", OK: len(names) > 0, Detail: fmt.Sprintf("%v", names)}
}

func (a *Application) checkScraper(ctx context.Context) CheckResult {
	targets, err := a.source.Targets(ctx)
	if err != nil {
		return CheckResult{Name: "scraper", Detail: err.Error()}
	}
	if len(targets) == 0 {
		return CheckResult{Name: "scraper", Detail: "no search targets configured"}
	}
	target := targets[0]

	fragment, err := a.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return CheckResult{Name: "scraper", Detail: err.Error()}
	}
	fragment.Source = target.Source

	extractor, err := a.registry.Resolve(target.Extractor)
	if err != nil {
		return CheckResult{Name: "scraper", Detail: err.Error()}
	}
	entries, err := extractor.Extract(fragment)
	if err != nil {
		if errors.Is(err, domain.ErrPageUnrecognized) {
			return CheckResult{Name: "scraper", Detail: "page not recognized (blocked or redesigned): " + err.Error()}
		}
		return CheckResult{Name: "scraper", Detail: err.Error()}
	}

	found, failed := 0, 0
	sample := ""
	for c, err := range entries {
		if err != nil {
			failed++
			continue
		}
		if found == 0 {
			sample = c.URL
		}
		found++
	}
	detail := fmt.Sprintf("%s: %d listings, %d unreadable", target.Label, found, failed)
	if sample != "" {
		detail += ", first " + sample
	}
	return CheckResult{Name: "scraper", OK: true, Detail: detail}
}
