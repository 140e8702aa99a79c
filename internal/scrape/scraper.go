package scrape

import (
	"context"
	"time"
)

// Strategy retrieves the HTML of a single URL one way.
type Strategy interface {
	Fetch(ctx context.Context, url string) (string, error)
	Name() string
}

// Attempt records the outcome of one strategy for one fetch.
type Attempt struct {
	Strategy string
	URL      string
	Err      error
	Duration time.Duration
}

// OK reports whether the attempt produced a body.
func (a Attempt) OK() bool { return a.Err == nil }

// AttemptObserver is notified after every strategy attempt.
type AttemptObserver interface {
	ObserveAttempt(Attempt)
}

// ObserverFunc adapts a function to AttemptObserver.
type ObserverFunc func(Attempt)

// ObserveAttempt calls f(a).
func (f ObserverFunc) ObserveAttempt(a Attempt) { f(a) }
