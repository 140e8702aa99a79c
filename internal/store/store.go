// Package store holds the process-local record set, the latest analysis
// results and the persisted lot selection.
package store

import "github.com/rotisserie/eris"

var (
	// ErrRecordNotFound is returned when no record has the given lot id.
	ErrRecordNotFound = eris.New("store: record not found")
	// ErrDuplicateLot is returned when an edit would give two records the
	// same lot id.
	ErrDuplicateLot = eris.New("store: duplicate lot id")
	// ErrNothingSelected is returned by HandOff when no lot is selected.
	ErrNothingSelected = eris.New("store: no lots selected")
	// ErrUnknownLot is returned by Toggle for a lot absent from the
	// candidate results.
	ErrUnknownLot = eris.New("store: lot not among results")
)
