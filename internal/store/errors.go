package store

import "errors"

// Sentinel error kinds shared across the store; higher layers (ingest,
// capsule, httpapi) map these onto the error kinds of spec section 7.
var (
	ErrNotFound   = errors.New("store: not found")
	ErrConflict   = errors.New("store: conflict")
	ErrValidation = errors.New("store: validation")
)
