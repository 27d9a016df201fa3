package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/filter"
	"ApartmentHunter/internal/normalize"
	"ApartmentHunter/internal/ports"
	"ApartmentHunter/internal/scanner"
)

type staticTargets []domain.ScanTarget

func (s staticTargets) Targets(context.Context) ([]domain.ScanTarget, error) {
	return s, nil
}

type fakeFetcher struct {
	fail  map[string]bool
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (domain.RawFragment, error) {
	f.calls++
	if f.fail[url] {
		return domain.RawFragment{}, fmt.Errorf("%w: timeout", domain.ErrFetchFailure)
	}
	return domain.RawFragment{URL: url, Body: []byte(url)}, nil
}

// fakeExtractor returns the candidates registered for a page URL.
type fakeExtractor struct {
	pages        map[string][]domain.Candidate
	unrecognized map[string]bool
	badEntries   int
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) Extract(fragment domain.RawFragment) (scanner.Entries, error) {
	if f.unrecognized[fragment.URL] {
		return func(func(domain.Candidate, error) bool) {}, fmt.Errorf("%w: captcha", domain.ErrPageUnrecognized)
	}
	candidates := f.pages[fragment.URL]
	bad := f.badEntries
	return func(yield func(domain.Candidate, error) bool) {
		for i := 0; i < bad; i++ {
			if !yield(domain.Candidate{}, fmt.Errorf("%w: empty card", domain.ErrExtraction)) {
				return
			}
		}
		for _, c := range candidates {
			if !yield(c, nil) {
				return
			}
		}
	}, nil
}

type memoryStore struct {
	mu            sync.Mutex
	listings      map[string]domain.Listing
	inserts       int
	updates       int
	sessions      []domain.ScanSession
	notifications []string
	failUpsert    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{listings: map[string]domain.Listing{}}
}

func (m *memoryStore) Exists(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.listings[fp]
	return ok, nil
}

func (m *memoryStore) Upsert(_ context.Context, l domain.Listing) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return "", fmt.Errorf("%w: database is locked", domain.ErrStoreFailure)
	}
	if existing, ok := m.listings[l.Fingerprint]; ok {
		existing.LastSeenAt = l.LastSeenAt
		m.listings[l.Fingerprint] = existing
		m.updates++
		return domain.Updated, nil
	}
	m.listings[l.Fingerprint] = l
	m.inserts++
	return domain.Inserted, nil
}

func (m *memoryStore) RecordSession(_ context.Context, s domain.ScanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memoryStore) RecordNotification(_ context.Context, fp, channel string, sendErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, fmt.Sprintf("%s:%s:%t", channel, fp, sendErr == nil))
	return nil
}

func (m *memoryStore) StatusSummary(context.Context, time.Time) (domain.StatusSummary, error) {
	return domain.StatusSummary{TotalListings: len(m.listings)}, nil
}

func (m *memoryStore) RecentListings(context.Context, int, bool) ([]domain.Listing, error) {
	return nil, nil
}

func (m *memoryStore) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memoryStore) Ping(context.Context) error { return nil }

type recordingNotifier struct {
	name string
	fail bool
	sent []domain.Listing
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, l domain.Listing) error {
	if r.fail {
		return fmt.Errorf("%w: 502", domain.ErrNotifyFailure)
	}
	r.sent = append(r.sent, l)
	return nil
}

const pageURL = "https://www.yad2.co.il/realestate/rent?city=4000"

func batGalim() domain.Candidate {
	return domain.Candidate{
		Title:     "3 חדרים בבת גלים",
		PriceText: "₪3,500",
		RoomsText: "3",
		Location:  "בת גלים",
		URL:       "https://www.yad2.co.il/realestate/item/abc",
		Source:    "yad2",
	}
}

type harness struct {
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	store     *memoryStore
	notifier  *recordingNotifier
	pipeline  *Pipeline
}

func newHarness(criteria domain.FilterCriteria, candidates ...domain.Candidate) *harness {
	h := &harness{
		fetcher:   &fakeFetcher{fail: map[string]bool{}},
		extractor: &fakeExtractor{pages: map[string][]domain.Candidate{pageURL: candidates}, unrecognized: map[string]bool{}},
		store:     newMemoryStore(),
		notifier:  &recordingNotifier{name: "test"},
	}
	registry := scanner.NewRegistry()
	registry.Register(h.extractor)

	h.pipeline = NewPipeline(PipelineDeps{
		Targets:    staticTargets{{Source: "yad2", Extractor: "fake", URL: pageURL, Label: "city-wide"}},
		Fetcher:    h.fetcher,
		Extractors: registry,
		Normalizer: normalize.New(normalize.Options{}),
		Filter:     filter.NewEngine(criteria),
		Store:      h.store,
		Notifiers:  []ports.Notifier{h.notifier},
	})
	return h
}

func TestPipelineScenarioPassesAndNotifies(t *testing.T) {
	t.Parallel()

	criteria := domain.FilterCriteria{
		PriceMin:  domain.IntPtr(2500),
		PriceMax:  domain.IntPtr(4000),
		RoomsMin:  domain.FloatPtr(2.5),
		RoomsMax:  domain.FloatPtr(3.5),
		Locations: []string{"בת גלים"},
	}
	h := newHarness(criteria, batGalim())

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}

	if session.Status != domain.SessionCompleted {
		t.Fatalf("expected completed session, got %s", session.Status)
	}
	if session.PagesFetched != 1 || session.Extracted != 1 || session.New != 1 || session.Passed != 1 || session.Notified != 1 {
		t.Fatalf("unexpected counters: %+v", session)
	}
	if len(h.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(h.notifier.sent))
	}
	sent := h.notifier.sent[0]
	if sent.Price == nil || *sent.Price != 3500 || sent.Rooms == nil || *sent.Rooms != 3 {
		t.Fatalf("unexpected normalized listing: %+v", sent)
	}
	stored := h.store.listings[sent.Fingerprint]
	if !stored.PassedFilter {
		t.Fatalf("expected stored listing to be marked passed")
	}
	if len(h.store.sessions) != 1 {
		t.Fatalf("expected session to be recorded once, got %d", len(h.store.sessions))
	}
	if len(h.store.notifications) != 1 {
		t.Fatalf("expected notification log entry, got %v", h.store.notifications)
	}
}

func TestPipelineFilteredListingIsStoredNotNotified(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{PriceMax: domain.IntPtr(3000)}, batGalim())

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if session.New != 1 || session.FilteredOut != 1 || session.Passed != 0 {
		t.Fatalf("unexpected counters: %+v", session)
	}
	if len(h.notifier.sent) != 0 {
		t.Fatalf("filtered listing must not be notified")
	}
	for _, l := range h.store.listings {
		if l.PassedFilter {
			t.Fatalf("filtered listing stored as passed")
		}
	}
}

func TestPipelineDedupIdempotence(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())

	if _, err := h.pipeline.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// Second sighting renders the same listing with cosmetic whitespace changes.
	again := batGalim()
	again.Title = "  3 חדרים   בבת גלים "
	again.PriceText = "3,500 ₪"
	again.URL = "https://www.yad2.co.il/realestate/item/abc?opened-from=feed"
	h.extractor.pages[pageURL] = []domain.Candidate{again}

	second, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if h.store.inserts != 1 || h.store.updates != 1 {
		t.Fatalf("expected 1 insert and 1 update, got %d/%d", h.store.inserts, h.store.updates)
	}
	if second.New != 0 || second.Duplicates != 1 {
		t.Fatalf("unexpected second-cycle counters: %+v", second)
	}
	if len(h.notifier.sent) != 1 {
		t.Fatalf("re-sighting must not be re-notified, got %d notifications", len(h.notifier.sent))
	}
}

func TestPipelineCollapsesDuplicatesWithinCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim(), batGalim())

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if session.New != 1 || session.Duplicates != 1 || h.store.inserts != 1 || h.store.updates != 0 {
		t.Fatalf("unexpected counters: %+v (inserts=%d updates=%d)", session, h.store.inserts, h.store.updates)
	}
}

func TestPipelineIsolatesPerItemErrors(t *testing.T) {
	t.Parallel()

	empty := domain.Candidate{PriceText: "₪3,000", URL: "https://www.yad2.co.il/realestate/item/x"}
	h := newHarness(domain.FilterCriteria{}, empty, batGalim())
	h.extractor.badEntries = 2

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if session.ExtractionErrors != 2 || session.NormalizationErrors != 1 || session.New != 1 {
		t.Fatalf("unexpected counters: %+v", session)
	}
	if session.Status != domain.SessionCompleted {
		t.Fatalf("per-item errors must not fail the cycle, got %s", session.Status)
	}
}

func TestPipelineNotifyFailureIsIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())
	h.notifier.fail = true

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if session.Status != domain.SessionCompleted || session.NotifyErrors != 1 || session.Notified != 0 {
		t.Fatalf("unexpected session: %+v", session)
	}
	for _, l := range h.store.listings {
		if !l.PassedFilter {
			t.Fatalf("notify failure must not unmark a passing listing")
		}
	}
	if len(h.store.notifications) != 1 || h.store.notifications[0] != "test:"+firstKey(h.store.listings)+":false" {
		t.Fatalf("expected failed attempt in notification log, got %v", h.store.notifications)
	}
}

func TestPipelineNotifiesEveryPassingListing(t *testing.T) {
	t.Parallel()

	var candidates []domain.Candidate
	for i := 0; i < 7; i++ {
		c := batGalim()
		c.Title = fmt.Sprintf("דירה %d", i)
		c.URL = fmt.Sprintf("https://www.yad2.co.il/realestate/item/%d", i)
		candidates = append(candidates, c)
	}
	h := newHarness(domain.FilterCriteria{}, candidates...)

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if session.Passed != 7 || session.Notified != 7 || len(h.notifier.sent) != 7 {
		t.Fatalf("unexpected counters: %+v, sent=%d", session, len(h.notifier.sent))
	}

	again, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle returned error: %v", err)
	}
	if again.Duplicates != 7 || again.Notified != 0 || len(h.notifier.sent) != 7 {
		t.Fatalf("re-sightings must not be notified again: %+v, sent=%d", again, len(h.notifier.sent))
	}
}

func TestPipelineStoreFailureAbortsCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())
	h.store.failUpsert = true

	session, err := h.pipeline.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if session.Status != domain.SessionErrored {
		t.Fatalf("expected errored session, got %s", session.Status)
	}
	if len(h.notifier.sent) != 0 {
		t.Fatalf("no notification may be sent after a store failure")
	}
	if len(h.store.sessions) != 1 || h.store.sessions[0].Status != domain.SessionErrored {
		t.Fatalf("errored session must still be recorded: %+v", h.store.sessions)
	}
}

func TestPipelineFetchFailureDegrades(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())
	h.fetcher.fail[pageURL] = true

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("fetch failure must not be fatal: %v", err)
	}
	if session.PagesFetched != 0 || session.FetchFailures != 1 || !session.Broken() {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestPipelinePageUnrecognizedIsDistinct(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())
	h.extractor.unrecognized[pageURL] = true

	session, err := h.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if session.PagesFetched != 1 || session.PagesUnrecognized != 1 || session.Extracted != 0 || !session.Broken() {
		t.Fatalf("unexpected session: %+v", session)
	}

	quiet := newHarness(domain.FilterCriteria{})
	quietSession, err := quiet.pipeline.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if quietSession.Broken() {
		t.Fatalf("a page with zero listings is a quiet day, not a broken scraper")
	}
}

func TestPipelineSkipsWhenGuardHeld(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())
	if !h.pipeline.guard.TryAcquire() {
		t.Fatalf("expected to acquire a fresh guard")
	}

	_, err := h.pipeline.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
	if h.fetcher.calls != 0 {
		t.Fatalf("skipped cycle must not fetch")
	}

	h.pipeline.guard.Release()
	if _, err := h.pipeline.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle after release: %v", err)
	}
	if h.pipeline.guard.Running() {
		t.Fatalf("guard must be released after a cycle")
	}
}

func TestPipelineCancelledContextAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(domain.FilterCriteria{}, batGalim())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := h.pipeline.RunCycle(ctx)
	if err != nil {
		t.Fatalf("abort is not an error: %v", err)
	}
	if session.Status != domain.SessionAborted {
		t.Fatalf("expected aborted session, got %s", session.Status)
	}
	if h.store.inserts != 0 || len(h.notifier.sent) != 0 {
		t.Fatalf("aborted cycle must not store or notify")
	}
	if len(h.store.sessions) != 1 {
		t.Fatalf("aborted session must still be recorded")
	}
}

func firstKey(m map[string]domain.Listing) string {
	for k := range m {
		return k
	}
	return ""
}
