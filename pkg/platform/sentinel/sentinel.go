package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped
// with fmt.Errorf and %w) and services translate them into domain errors:
//   - ErrNotFound: the record does not exist
//   - ErrConflict: a compare-and-set lost, or the write would break a record invariant
//   - ErrExpired: the record is past its validity window
//   - ErrUnavailable: the backing store could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
