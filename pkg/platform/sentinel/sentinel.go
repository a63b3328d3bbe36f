package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores (session records, token
// revocation lists, device bindings, device registries) return these, possibly
// wrapped, and services translate them into domain errors.
//
// They describe the state of a stored resource, never input validation:
// - ErrNotFound: record does not exist
// - ErrConflict: concurrent writer won a compare-and-swap, or duplicate key
// - ErrInvalidState: record in wrong state for the requested operation
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
)
