// Package domain holds the types shared by the directory, issue store,
// conversation controller and storage drivers.
package domain

import "errors"

// ErrStoreUnavailable marks failures of the durable store. Storage drivers
// wrap every database error with it so callers can tell infrastructure
// failures apart from domain outcomes.
var ErrStoreUnavailable = errors.New("store unavailable")
