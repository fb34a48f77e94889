// CLAUDE:SUMMARY Failure taxonomy sentinels (transient, permanent, corruption, config, soft-parse) and HTTP status classifier.
// Package fault defines the failure taxonomy shared by fetchers, the queue
// processor, and the refresher.
//
// Transient failures are retried (with backoff) until the retry budget is
// exhausted, at which point the catalog entry sticks at failed. Permanent
// failures are never retried. Corruption is fatal.
package fault

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTransient marks a failure that may succeed on retry: network timeout,
// 5xx, 429, subprocess timeout within its ceiling, LLM timeout.
var ErrTransient = errors.New("transient failure")

// ErrPermanent marks a failure that retrying cannot fix: 4xx (except 429),
// missing transcript, unresolvable URL, rejected content type.
var ErrPermanent = errors.New("permanent failure")

// ErrCorruption marks inconsistent store state. The process should exit
// after logging; recovery requires operator intervention.
var ErrCorruption = errors.New("store corruption")

// ErrConfig marks missing or invalid required configuration, detected at
// startup.
var ErrConfig = errors.New("configuration error")

// Transient wraps err as a transient failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Transientf formats a transient failure.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// Permanent wraps err as a permanent failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Permanentf formats a permanent failure.
func Permanentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}

// IsTransient reports whether err is retriable. Unknown errors (no taxonomy
// wrapping) are treated as transient: safer to retry than to stick.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return true
}

// FromStatus classifies an HTTP response status. 2xx/3xx map to nil.
// 429 is transient despite being a 4xx; all other 4xx are permanent.
func FromStatus(code int) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		return Transientf("http %d", code)
	case code < 500:
		return Permanentf("http %d", code)
	default:
		return Transientf("http %d", code)
	}
}

// IsRateLimited reports whether err stems from an HTTP 429 response.
func IsRateLimited(err error) bool {
	return err != nil && errors.Is(err, ErrTransient) &&
		strings.Contains(err.Error(), "http 429")
}
