// Package idgen mints the time-ordered 128-bit identifiers used for every
// entity in the data model: sortable, globally unique, and free of a
// central allocator.
package idgen

import "github.com/google/uuid"

// New returns a fresh time-ordered 128-bit id rendered as a UUID string.
// UUIDv7 packs a millisecond timestamp into the high bits, so ids sort
// lexicographically in creation order the way dex's storage.NewID does
// for its own (non-time-ordered) ids.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only errors if the system clock or entropy source is
		// broken; fall back to a random v4 rather than panic on a home
		// server that can't guarantee a monotonic clock source.
		return uuid.NewString()
	}
	return id.String()
}
