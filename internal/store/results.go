package store

import (
	"sync"
	"time"

	"github.com/sells-group/lotwatch/internal/model"
)

// Results holds the most recent analysis output. Each Set replaces the
// previous results wholesale.
type Results struct {
	mu            sync.RWMutex
	results       []model.SuspicionResult
	executionTime float64
	updatedAt     time.Time
}

// NewResults creates an empty Results.
func NewResults() *Results {
	return &Results{}
}

// Set stores results with the service-reported execution time in seconds.
func (r *Results) Set(results []model.SuspicionResult, executionTime float64) {
	cp := make([]model.SuspicionResult, len(results))
	copy(cp, results)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = cp
	r.executionTime = executionTime
	r.updatedAt = time.Now().UTC()
}

// Get returns a copy of the stored results and their execution time.
func (r *Results) Get() ([]model.SuspicionResult, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SuspicionResult, len(r.results))
	copy(out, r.results)
	return out, r.executionTime
}

// UpdatedAt returns when results were last set, or the zero time.
func (r *Results) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// Clear drops the stored results.
func (r *Results) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = nil
	r.executionTime = 0
	r.updatedAt = time.Time{}
}
