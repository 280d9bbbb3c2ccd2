package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Now returns the current time in UTC, truncated to microseconds (the DB precision).
func Now() time.Time {
	return nowFunc().UTC().Truncate(time.Microsecond)
}

var nowFunc = time.Now // mockable
