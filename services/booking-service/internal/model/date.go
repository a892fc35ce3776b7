package model

import (
	"time"
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD into a civil date (midnight UTC).
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// CivilDate drops the clock and zone of t, keeping its calendar day as seen in t's location.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Location resolves an IANA zone, falling back to fallback and then UTC.
func Location(name, fallback string) *time.Location {
	for _, n := range []string{name, fallback} {
		if n == "" {
			continue
		}
		if loc, err := time.LoadLocation(n); err == nil {
			return loc
		}
	}
	return time.UTC
}

// MonthBounds returns the first day of date's month and the first day of the next.
func MonthBounds(date time.Time) (time.Time, time.Time) {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, 0)
}
