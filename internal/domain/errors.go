// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrInvalidState indicates a lifecycle transition attempted from a
// disallowed predecessor state. Redelivery of an already-terminal review
// surfaces this; the queue layer treats it as a non-retryable ack.
var ErrInvalidState = errors.New("invalid lifecycle state")
