// Package timeofday converts between "HH:MM" wall-clock strings and minutes
// since midnight. Business hours, lunch windows and slots are all stored as
// minutes so arithmetic stays integer and time-zone free.
package timeofday

import (
	"fmt"
	"strconv"
	"strings"
)

// EndOfDay is accepted as a closing time ("24:00").
const EndOfDay = 24 * 60

// Parse accepts "H:MM", "HH:MM" and "HH:MM:SS". Seconds must be zero.
func Parse(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) > 2 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	if len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}
	total := h*60 + m
	if h < 0 || total > EndOfDay {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	return total, nil
}

// Format renders minutes as zero-padded "HH:MM".
func Format(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Valid reports whether minutes is a start time within a day.
func Valid(minutes int) bool {
	return minutes >= 0 && minutes < EndOfDay
}
