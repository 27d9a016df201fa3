package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/filter"
	"ApartmentHunter/internal/fingerprint"
	"ApartmentHunter/internal/metrics"
	"ApartmentHunter/internal/normalize"
	"ApartmentHunter/internal/ports"
	"ApartmentHunter/internal/scanner"
)

// Stage names one step of a scan cycle.
type Stage string

const (
	StageFetching      Stage = "fetching"
	StageExtracting    Stage = "extracting"
	StageNormalizing   Stage = "normalizing"
	StageDeduplicating Stage = "deduplicating"
	StageFiltering     Stage = "filtering"
	StageNotifying     Stage = "notifying"
	StageFinalizing    Stage = "finalizing"
)

const finalizeTimeout = 10 * time.Second

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Targets    ports.TargetSource
	Fetcher    ports.Fetcher
	Extractors *scanner.Registry
	Normalizer *normalize.Normalizer
	Filter     *filter.Engine
	Store      ports.ListingStore
	Notifiers  []ports.Notifier
	Guard      *ScanGuard
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Pipeline runs scan cycles: fetch pages, extract candidates, normalize,
// fingerprint, deduplicate against the store, filter and notify.
type Pipeline struct {
	targets    ports.TargetSource
	fetcher    ports.Fetcher
	extractors *scanner.Registry
	normalizer *normalize.Normalizer
	filter     *filter.Engine
	store      ports.ListingStore
	notifiers  []ports.Notifier
	guard      *ScanGuard
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		targets:    deps.Targets,
		fetcher:    deps.Fetcher,
		extractors: deps.Extractors,
		normalizer: deps.Normalizer,
		filter:     deps.Filter,
		store:      deps.Store,
		notifiers:  deps.Notifiers,
		guard:      deps.Guard,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      deps.Clock,
	}
	if p.guard == nil {
		p.guard = NewScanGuard()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(normalize.Options{})
	}
	if p.filter == nil {
		p.filter = filter.NewEngine(domain.FilterCriteria{})
	}
	return p
}

// cycle carries the mutable state of one run.
type cycle struct {
	session domain.ScanSession
	seen    map[string]struct{}
	pending []domain.Listing
}

// RunCycle executes one full scan. It returns domain.ErrScanInProgress when
// another cycle holds the guard, and an error wrapping domain.ErrStoreFailure
// when persistence fails. Every other failure is counted in the session.
func (p *Pipeline) RunCycle(ctx context.Context) (domain.ScanSession, error) {
	if !p.guard.TryAcquire() {
		p.logger.Warn("scan skipped, previous cycle still running")
		return domain.ScanSession{}, domain.ErrScanInProgress
	}
	defer p.guard.Release()

	c := &cycle{
		session: domain.ScanSession{
			ID:        uuid.NewString(),
			StartedAt: p.clock(),
			Status:    domain.SessionRunning,
		},
		seen: make(map[string]struct{}),
	}
	log := p.logger.With("session", c.session.ID)
	log.Info("scan started")

	err := p.process(ctx, log, c)
	switch {
	case err == nil:
		c.session.Status = domain.SessionCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.session.Status = domain.SessionAborted
		c.session.Error = err.Error()
		err = nil
	default:
		c.session.Status = domain.SessionErrored
		c.session.Error = err.Error()
	}

	p.finalize(log, c)
	return c.session, err
}

func (p *Pipeline) process(ctx context.Context, log *slog.Logger, c *cycle) error {
	pages, err := p.fetchStage(ctx, log, c)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Debug("stage", "stage", StageExtracting, "pages", len(pages))
	for listing, err := range p.listings(log, c, pages) {
		if err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.admit(ctx, log, c, listing); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.notifyStage(ctx, log, c)
	return nil
}

func (p *Pipeline) fetchStage(ctx context.Context, log *slog.Logger, c *cycle) ([]fetchedPage, error) {
	log.Debug("stage", "stage", StageFetching)
	if p.targets == nil || p.fetcher == nil {
		return nil, nil
	}

	targets, err := p.targets.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan targets: %w", err)
	}

	pages := make([]fetchedPage, 0, len(targets))
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fragment, err := p.fetcher.Fetch(ctx, target.URL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.session.FetchFailures++
			log.Warn("fetch failed", "target", target.Label, "url", target.URL, "error", err)
			continue
		}
		if fragment.Source == "" {
			fragment.Source = target.Source
		}
		c.session.PagesFetched++
		pages = append(pages, fetchedPage{target: target, fragment: fragment})
	}

	log.Info("pages fetched", "fetched", c.session.PagesFetched, "failed", c.session.FetchFailures)
	return pages, nil
}

type fetchedPage struct {
	target   domain.ScanTarget
	fragment domain.RawFragment
}

// listings chains extraction and normalization lazily; per-item failures are
// counted and yielded so the consumer can skip them.
func (p *Pipeline) listings(log *slog.Logger, c *cycle, pages []fetchedPage) iter.Seq2[domain.Listing, error] {
	return func(yield func(domain.Listing, error) bool) {
		for _, page := range pages {
			for candidate, err := range p.extract(log, c, page) {
				if err != nil {
					c.session.ExtractionErrors++
					log.Debug("entry skipped", "stage", StageExtracting, "url", page.fragment.URL, "error", err)
					if !yield(domain.Listing{}, err) {
						return
					}
					continue
				}
				c.session.Extracted++

				listing, err := p.normalizer.Normalize(candidate)
				if err != nil {
					c.session.NormalizationErrors++
					log.Debug("record skipped", "stage", StageNormalizing, "url", candidate.URL, "error", err)
					if !yield(domain.Listing{}, err) {
						return
					}
					continue
				}
				listing.Fingerprint = fingerprint.Of(listing)
				if !yield(listing, nil) {
					return
				}
			}
		}
	}
}

func (p *Pipeline) extract(log *slog.Logger, c *cycle, page fetchedPage) scanner.Entries {
	empty := func(func(domain.Candidate, error) bool) {}
	if p.extractors == nil {
		return empty
	}

	extractor, err := p.extractors.Resolve(page.target.Extractor)
	if err != nil {
		c.session.PagesUnrecognized++
		log.Error("no extractor for target", "target", page.target.Label, "error", err)
		return empty
	}

	entries, err := extractor.Extract(page.fragment)
	if err != nil {
		// PageUnrecognized is the only page-level failure extractors report.
		c.session.PagesUnrecognized++
		log.Warn("page not recognized", "target", page.target.Label, "url", page.fragment.URL, "error", err)
		return empty
	}
	return entries
}

// admit runs the dedup and filter stages for one listing.
func (p *Pipeline) admit(ctx context.Context, log *slog.Logger, c *cycle, listing domain.Listing) error {
	if _, dup := c.seen[listing.Fingerprint]; dup {
		c.session.Duplicates++
		return nil
	}
	c.seen[listing.Fingerprint] = struct{}{}

	now := p.clock()
	listing.FirstSeenAt = now
	listing.LastSeenAt = now

	exists, err := p.store.Exists(ctx, listing.Fingerprint)
	if err != nil {
		return fmt.Errorf("%s: %w", StageDeduplicating, err)
	}

	var verdict domain.Verdict
	if !exists {
		verdict = p.filter.Evaluate(listing)
		listing.PassedFilter = verdict.Passed
	}

	result, err := p.store.Upsert(ctx, listing)
	if err != nil {
		return fmt.Errorf("%s: %w", StageDeduplicating, err)
	}
	if result == domain.Updated {
		c.session.Duplicates++
		log.Debug("re-sighting", "stage", StageDeduplicating, "fingerprint", listing.Fingerprint)
		return nil
	}
	c.session.New++

	if !verdict.Passed {
		c.session.FilteredOut++
		log.Debug("filtered out", "stage", StageFiltering, "title", listing.Title,
			"reason", verdict.Reason, "detail", verdict.Detail)
		return nil
	}
	c.session.Passed++
	c.pending = append(c.pending, listing)
	log.Info("listing passed filters", "title", listing.Title, "url", listing.URL)
	return nil
}

func (p *Pipeline) notifyStage(ctx context.Context, log *slog.Logger, c *cycle) {
	log.Debug("stage", "stage", StageNotifying, "pending", len(c.pending))
	if len(p.notifiers) == 0 || len(c.pending) == 0 {
		return
	}

	for _, listing := range c.pending {
		if ctx.Err() != nil {
			return
		}

		delivered := false
		for _, n := range p.notifiers {
			err := n.Notify(ctx, listing)
			p.metrics.ObserveNotification(n.Name(), err)
			if err != nil {
				c.session.NotifyErrors++
				log.Warn("notify failed", "channel", n.Name(), "fingerprint", listing.Fingerprint, "error", err)
			} else {
				delivered = true
			}
			if recErr := p.store.RecordNotification(ctx, listing.Fingerprint, n.Name(), err); recErr != nil {
				log.Warn("notification not recorded", "channel", n.Name(), "error", recErr)
			}
		}
		if delivered {
			c.session.Notified++
		}
	}
}

func (p *Pipeline) finalize(log *slog.Logger, c *cycle) {
	c.session.FinishedAt = p.clock()
	s := c.session

	// The cycle context may already be cancelled; the session is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if p.store != nil {
		if err := p.store.RecordSession(ctx, s); err != nil {
			log.Error("session not recorded", "error", err)
		}
	}
	p.metrics.ObserveSession(s)

	attrs := []any{
		"stage", StageFinalizing,
		"status", s.Status,
		"duration", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond),
		"pages", s.PagesFetched,
		"fetch_failures", s.FetchFailures,
		"unrecognized", s.PagesUnrecognized,
		"extracted", s.Extracted,
		"new", s.New,
		"duplicates", s.Duplicates,
		"passed", s.Passed,
		"filtered_out", s.FilteredOut,
		"notified", s.Notified,
		"errors", s.Errored(),
	}
	switch {
	case s.Status == domain.SessionErrored:
		log.Error("scan failed", append(attrs, "error", s.Error)...)
	case s.Broken():
		log.Warn("scan finished but no page was usable", attrs...)
	default:
		log.Info("scan finished", attrs...)
	}
}
