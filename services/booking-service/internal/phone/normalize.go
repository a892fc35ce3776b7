// Package phone canonicalizes Brazilian phone numbers so that the same line
// typed in different formats compares equal.
package phone

import "strings"

const countryCode = "55"

// Normalize reduces raw to digits with the country code prepended.
//
//	"(11) 99999-1111"      -> "5511999991111"
//	"+55 11 99999-1111"    -> "5511999991111"
//	"011 99999-1111"       -> "5511999991111"
//	"055 11 99999-1111"    -> "5511999991111"
//
// Every leading zero is dropped first, which covers both the trunk "0" and
// the international "00" prefix. Area codes never start with 0, so nothing
// valid is lost. Numbers that do not look Brazilian are returned as their
// digits. Normalize is idempotent.
func Normalize(raw string) string {
	digits := strings.TrimLeft(digitsOnly(raw), "0")
	if digits == "" {
		return ""
	}

	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}
	if len(digits) == 10 || len(digits) == 11 {
		return countryCode + digits
	}
	return digits
}

// Valid reports whether a normalized number has country code, area code and subscriber.
func Valid(normalized string) bool {
	return len(normalized) >= 12 && len(normalized) <= 13 && strings.HasPrefix(normalized, countryCode)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
