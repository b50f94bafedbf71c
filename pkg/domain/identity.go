// Package domain provides the shared vocabulary of LucciBot: hub topics,
// status and level enums, identifiers and timestamps. Every component speaks
// these types; none of them import one another directly.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

// EntityID is a typed identifier. All ids are canonical UUID strings.
type EntityID string

// NewID generates a random (version 4) UUID identifier.
func NewID() EntityID {
	return EntityID(uuid.NewString())
}

// ParseID validates s as a UUID and returns it in canonical form.
func ParseID(s string) (EntityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return EntityID(u.String()), nil
}

// String implements fmt.Stringer.
func (id EntityID) String() string { return string(id) }

// Short returns the first n characters of the id, or the whole id if shorter.
func (id EntityID) Short(n int) string {
	if n < 0 || len(id) <= n {
		return string(id)
	}
	return string(id[:n])
}

// ---------------------------------------------------------------------------
// Timestamps
// ---------------------------------------------------------------------------

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// EpochMillis converts t to integer milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 { return t.UnixMilli() }
