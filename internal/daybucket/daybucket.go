package daybucket

import (
	"fmt"
	"time"
)

// Layout is the wire format for day bucket ids. Plain string comparison of
// two bucket ids orders them chronologically.
const Layout = "2006-01-02"

// ID formats the calendar date of t as a bucket id (YYYY-MM-DD, zero-padded).
// The date is taken in t's own location.
func ID(t time.Time) string {
	return t.Format(Layout)
}

// Today returns the bucket id for the current date in loc.
func Today(loc *time.Location) string {
	return ID(time.Now().In(loc))
}

// Parse validates a bucket id and returns its midnight in loc.
func Parse(id string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, id, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day bucket id %q: %w", id, err)
	}
	// Reject non-canonical spellings that time.Parse accepts, e.g. "2025-6-1".
	if ID(t) != id {
		return time.Time{}, fmt.Errorf("invalid day bucket id %q: not canonical", id)
	}
	return t, nil
}

// IsPast reports whether id is strictly before today in loc.
func IsPast(id string, loc *time.Location) bool {
	return id < Today(loc)
}
