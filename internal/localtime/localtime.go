// Package localtime provides Tokyo-timezone calendar arithmetic. All period
// bucketing in the bridge is by Tokyo local date, regardless of the UTC
// timestamps the API returns.
package localtime

import (
	"sync"
	"time"
)

const zoneName = "Asia/Tokyo"

var (
	once sync.Once
	loc  *time.Location
)

// Location returns the Tokyo location. Falls back to a fixed +9 zone when
// the tz database is unavailable (static binaries without tzdata).
func Location() *time.Location {
	once.Do(func() {
		var err error
		loc, err = time.LoadLocation(zoneName)
		if err != nil {
			loc = time.FixedZone("JST", 9*60*60)
		}
	})
	return loc
}

// Now returns the current time in Tokyo.
func Now() time.Time {
	return time.Now().In(Location())
}

// StartOfDay returns midnight of t's Tokyo calendar date.
func StartOfDay(t time.Time) time.Time {
	t = t.In(Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location())
}

// StartOfMonth returns midnight on the 1st of t's Tokyo calendar month.
func StartOfMonth(t time.Time) time.Time {
	t = t.In(Location())
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, Location())
}

// StartOfPreviousMonth returns midnight on the 1st of the month before t's
// Tokyo calendar month.
func StartOfPreviousMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, -1, 0)
}

// DaysInMonth returns the number of days in t's Tokyo calendar month.
func DaysInMonth(t time.Time) int {
	next := StartOfMonth(t).AddDate(0, 1, 0)
	return next.AddDate(0, 0, -1).Day()
}

// DaysElapsed returns the number of days elapsed in t's Tokyo calendar
// month, inclusive of today.
func DaysElapsed(t time.Time) int {
	return t.In(Location()).Day()
}

// SameDay reports whether a and b fall on the same Tokyo calendar date.
func SameDay(a, b time.Time) bool {
	a, b = a.In(Location()), b.In(Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SameMonth reports whether a and b fall in the same Tokyo calendar month.
func SameMonth(a, b time.Time) bool {
	a, b = a.In(Location()), b.In(Location())
	return a.Year() == b.Year() && a.Month() == b.Month()
}
