// Package resilience decides which failures are worth retrying and retries
// them with jittered exponential backoff.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Class is the retry classification of an error.
type Class int

const (
	Permanent Class = iota
	Transient
	Canceled
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Canceled:
		return "canceled"
	default:
		return "permanent"
	}
}

// TransientError marks an upstream failure as safe to retry, optionally
// carrying the HTTP status that caused it.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// MarkTransient wraps err as transient. A nil err stays nil.
func MarkTransient(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientMessages = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// Classify reports how err should be treated by a retry loop.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}

	var te *TransientError
	if errors.As(err, &te) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientMessages {
		if strings.Contains(msg, p) {
			return Transient
		}
	}
	return Permanent
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}

// TransientStatus reports whether an HTTP status indicates a temporary
// upstream condition: timeouts, rate limiting and gateway errors.
func TransientStatus(code int) bool {
	switch code {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
