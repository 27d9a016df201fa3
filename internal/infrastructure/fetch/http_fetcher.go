package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/ports"
)

const maxBodyBytes = 8 << 20

var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Cache-Control":             "max-age=0",
	"DNT":                       "1",
}

// Options configures timeouts, retries and pacing.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// HTTPFetcher downloads pages with a per-request timeout, exponential back-off
// retries and a shared rate limit between requests.
type HTTPFetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	logger     *slog.Logger
}

var _ ports.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets one with opts.Timeout.
func NewHTTPFetcher(client *http.Client, opts Options, logger *slog.Logger) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &HTTPFetcher{
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		userAgent:  opts.UserAgent,
		logger:     logger,
	}
}

// Fetch tries the URL once plus MaxRetries times. Every failure mode is
// reported as domain.ErrFetchFailure.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (domain.RawFragment, error) {
	attempts := f.maxRetries + 1
	delay := f.retryDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return domain.RawFragment{}, fmt.Errorf("%w: %s: %w", domain.ErrFetchFailure, pageURL, err)
		}

		body, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			f.debug("fetched page", "url", pageURL, "bytes", len(body), "attempt", attempt)
			return domain.RawFragment{URL: pageURL, Body: body}, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		f.warn("fetch failed, retrying", "url", pageURL, "attempt", attempt, "max", attempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return domain.RawFragment{}, fmt.Errorf("%w: %s: %w", domain.ErrFetchFailure, pageURL, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return domain.RawFragment{}, fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrFetchFailure, pageURL, attempts, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *HTTPFetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *HTTPFetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
