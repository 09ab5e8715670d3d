// Package validation checks user-supplied search queries and coordinates
// before they reach the provider.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrQueryEmpty is returned when the query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooShort is returned when the query length is below the minimum.
var ErrQueryTooShort = errors.New("query too short")

// ErrQueryTooLong is returned when the query length exceeds the maximum.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when the query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ErrCoordinatesOutOfRange is returned for latitudes or longitudes outside
// the valid globe.
var ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

// ValidateCityQuery trims the input, enforces length bounds (minLen, maxLen
// in runes), and restricts to allowed characters: letters (Unicode, so Arabic
// city names pass), digits, space, comma, hyphen, apostrophe. Returns the
// trimmed string or an error suitable for 400 INVALID_QUERY responses.
func ValidateCityQuery(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// ValidateCoordinates checks a latitude/longitude pair against the valid
// ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrCoordinatesOutOfRange
	}
	return nil
}

// isAllowedQueryRune returns true for letters (Unicode), digits, space,
// comma, hyphen, apostrophe.
func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'':
		return true
	}
	return false
}
