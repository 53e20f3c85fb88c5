// Package syncerr defines the error kinds the sync engine distinguishes
// when deciding whether a job fails terminally, is deferred, or keeps
// going record-by-record.
package syncerr

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNoCredentials means no connected account (or an unreadable
	// token) exists for the tenant/platform. Jobs fail terminally.
	ErrNoCredentials = errors.New("no credentials")

	// ErrRefreshFailed means the upstream OAuth server rejected a
	// token refresh. Jobs fail terminally; the account row is kept.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrRateLimited means the budgeter denied admission. Jobs are
	// re-queued rather than failed.
	ErrRateLimited = errors.New("rate limited")
)

// UpstreamError is a non-2xx response from a platform API after the
// retry layer gave up (or a non-retryable 4xx returned immediately).
type UpstreamError struct {
	Platform string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Platform, e.Status, Clip(e.Body, 200))
}

// Clip caps s to at most max bytes without splitting a multi-byte
// rune, so clipped text stays valid UTF-8 for text columns and logs.
func Clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// StoreError wraps a row-store write failure for a single record.
// Runs log these and keep going; aggregated counts are reported at
// the end of the run instead of aborting it.
type StoreError struct {
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store write to %s failed: %v", e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
