package domain

import "errors"

var (
	// ErrFetchFailure covers network errors, non-2xx responses and timeouts alike.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrPageUnrecognized means the page layout was not a listing page (block, CAPTCHA, redesign).
	ErrPageUnrecognized = errors.New("page unrecognized")
	// ErrExtraction marks a single malformed entry on an otherwise recognized page.
	ErrExtraction = errors.New("extraction error")
	// ErrNormalization marks a record with neither title nor location.
	ErrNormalization = errors.New("normalization error")
	// ErrStoreFailure is the only cycle-fatal error.
	ErrStoreFailure = errors.New("store failure")
	// ErrNotifyFailure marks a failed notification delivery.
	ErrNotifyFailure = errors.New("notify failure")
	// ErrScanInProgress is returned when a cycle is requested while another one runs.
	ErrScanInProgress = errors.New("scan already in progress")
)
