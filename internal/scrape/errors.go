package scrape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/lotwatch/internal/resilience"
)

// Cause classifies why every strategy failed.
type Cause string

const (
	// CauseBlocked covers transport failures, block pages, refusals and
	// rate limiting.
	CauseBlocked Cause = "blocked"
	// CauseOther covers everything else, such as 404s or empty bodies.
	CauseOther Cause = "other"
)

// Guidance texts shown to the user alongside a FetchError.
const (
	blockedGuidance = "The page could not be loaded because the request was blocked. " +
		"Try: 1) disabling the ad blocker or filtering proxy, 2) another network or browser profile, " +
		"3) a CORS-disabling extension or a custom proxy in scrape.proxies (development only)."
	otherGuidance = "The page could not be loaded by any available method. Check the URL and try again later."
)

// StatusError is returned by a strategy that received a non-2xx response.
type StatusError struct {
	Strategy   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Strategy, e.StatusCode)
}

// BlockedError is returned when a response looks like an anti-bot page.
type BlockedError struct {
	Strategy string
	Type     BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: blocked (%s)", e.Strategy, e.Type)
}

// FetchError aggregates every failed attempt of one chain fetch.
type FetchError struct {
	URL      string
	Attempts []Attempt
	Cause    Cause
}

func newFetchError(url string, attempts []Attempt) *FetchError {
	fe := &FetchError{URL: url, Attempts: attempts, Cause: CauseOther}
	for _, a := range attempts {
		if a.Err != nil && blockedAttempt(a.Err) {
			fe.Cause = CauseBlocked
			break
		}
	}
	return fe
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			parts = append(parts, a.Err.Error())
		}
	}
	return fmt.Sprintf("scrape: all strategies failed for %s (%s): %s",
		e.URL, e.Cause, strings.Join(parts, "; "))
}

// Unwrap exposes the attempt errors to errors.Is and errors.As.
func (e *FetchError) Unwrap() []error {
	var errs []error
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Guidance returns user-facing advice matching the failure cause.
func (e *FetchError) Guidance() string {
	if e.Cause == CauseBlocked {
		return blockedGuidance
	}
	return otherGuidance
}

// IsBlocked reports whether err is a FetchError caused by blocking.
func IsBlocked(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Cause == CauseBlocked
}

func blockedAttempt(err error) bool {
	if resilience.Classify(err) == resilience.Canceled {
		return false
	}
	// Timeouts, resets and refused connections.
	if resilience.IsTransient(err) {
		return true
	}
	var be *BlockedError
	if errors.As(err, &be) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case 403, 429, 451:
			return true
		}
		return false
	}
	if errors.Is(err, ErrEmptyBody) {
		return false
	}
	// Anything else never reached an HTTP response: refused, reset, DNS,
	// TLS or proxy failures.
	return true
}
