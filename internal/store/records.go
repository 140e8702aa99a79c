package store

import (
	"sync"

	"github.com/sells-group/lotwatch/internal/model"
)

// MergeMode selects how Merge combines incoming records with the stored set.
type MergeMode int

const (
	// MergeAppend keeps existing records and adds only unseen lot ids.
	MergeAppend MergeMode = iota
	// MergeReplace swaps the whole set for the incoming records.
	MergeReplace
)

func (m MergeMode) String() string {
	if m == MergeReplace {
		return "replace"
	}
	return "append"
}

// Records is the single owned record collection. Every mutation goes
// through its methods, which keep lot ids unique. Safe for concurrent use.
type Records struct {
	mu    sync.RWMutex
	recs  []model.Record
	index map[string]struct{}
}

// NewRecords creates an empty collection.
func NewRecords() *Records {
	return &Records{index: make(map[string]struct{})}
}

// Merge combines recs into the collection and returns the number of records
// added. Within recs the first record for a lot id wins.
func (s *Records) Merge(recs []model.Record, mode MergeMode) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == MergeReplace {
		s.recs = nil
		s.index = make(map[string]struct{}, len(recs))
	}

	added := 0
	for _, r := range recs {
		if _, seen := s.index[r.LotID]; seen {
			continue
		}
		s.index[r.LotID] = struct{}{}
		s.recs = append(s.recs, r)
		added++
	}
	return added
}

// Snapshot returns a copy of the records in insertion order.
func (s *Records) Snapshot() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Record, len(s.recs))
	copy(out, s.recs)
	return out
}

// Len returns the number of records.
func (s *Records) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// Get returns the record with the given lot id.
func (s *Records) Get(lotID string) (model.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.position(lotID); i >= 0 {
		return s.recs[i], true
	}
	return model.Record{}, false
}

// Clear drops every record.
func (s *Records) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = nil
	s.index = make(map[string]struct{})
}

// Update replaces the record with the given lot id in place. The
// replacement may carry a new lot id as long as it stays unique.
func (s *Records) Update(lotID string, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.position(lotID)
	if i < 0 {
		return ErrRecordNotFound
	}
	if rec.LotID != lotID {
		if _, taken := s.index[rec.LotID]; taken {
			return ErrDuplicateLot
		}
		delete(s.index, lotID)
		s.index[rec.LotID] = struct{}{}
	}
	s.recs[i] = rec
	return nil
}

// Remove deletes the record with the given lot id.
func (s *Records) Remove(lotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.position(lotID)
	if i < 0 {
		return ErrRecordNotFound
	}
	s.recs = append(s.recs[:i], s.recs[i+1:]...)
	delete(s.index, lotID)
	return nil
}

// position returns the slice index of lotID or -1. Callers hold the lock.
func (s *Records) position(lotID string) int {
	if _, ok := s.index[lotID]; !ok {
		return -1
	}
	for i := range s.recs {
		if s.recs[i].LotID == lotID {
			return i
		}
	}
	return -1
}
