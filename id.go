package mica

import "github.com/google/uuid"

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for ideas, notes, documents, graph records, and snapshots so that
// insertion order is recoverable from the id alone.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
