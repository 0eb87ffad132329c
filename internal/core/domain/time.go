package domain

import "time"

// Stamp renders a timestamp in the canonical store format (RFC 3339, UTC).
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StampPtr renders an optional timestamp, mapping the zero value to nil.
func StampPtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := Stamp(t)
	return &s
}
