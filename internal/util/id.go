// Package util holds small internal helpers shared across packages. It lives
// in internal to avoid committing to public API stability prematurely.
package util

import "github.com/google/uuid"

// NewID generates a new unique identifier for queries, events and
// placeholder document ids.
func NewID() string { return uuid.NewString() }
