// Package validation checks request inputs at the service boundary:
// locations, crop keys and weather snapshots.
package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")
)

// locationPunct are the non-alphanumeric runes that appear in place names.
const locationPunct = " ,-.'"

// ValidateLocation trims input and checks its rune length against minLen and
// maxLen (non-positive bounds are ignored). Letters in any script, combining
// marks, digits and locationPunct are allowed, so "नई दिल्ली" and
// "St. Thomas Mount" pass. Case is left to the service layer.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0:
		return "", ErrLocationEmpty
	case minLen > 0 && n < minLen:
		return "", ErrLocationTooShort
	case maxLen > 0 && n > maxLen:
		return "", ErrLocationTooLong
	}
	if strings.IndexFunc(s, func(r rune) bool { return !locationRune(r) }) >= 0 {
		return "", ErrLocationInvalidChars
	}
	return s, nil
}

func locationRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) || strings.ContainsRune(locationPunct, r)
}
