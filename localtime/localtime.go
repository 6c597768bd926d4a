// Package localtime renders check-in timestamps for display at the door.
package localtime

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// Layout is the day-first format operators read on screen.
const Layout = "02/01/2006 15:04"

// Load resolves an IANA zone name, falling back to UTC for an empty or
// unknown name.
func Load(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Format renders t in loc. The zero time renders as an empty string.
func Format(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(Layout)
}
