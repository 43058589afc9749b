// Package domain holds identifier and enum types shared across modules.
// Construct values via the Parse helpers at trust boundaries; direct casting
// bypasses validation.
package domain

import (
	"strings"

	dErrors "simba/pkg/domain-errors"
)

// ShareID identifies a package-destination address in the surrounding
// logistics system. Opaque here; immutable once assigned to a correction.
type ShareID string

// ParseShareID constructs a ShareID from external input.
//
// Errors: CodeInvalidInput when empty or longer than the 50-character column.
func ParseShareID(s string) (ShareID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "share_id cannot be empty")
	}
	if len(s) > 50 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "share_id exceeds 50 characters")
	}
	return ShareID(s), nil
}

func (s ShareID) IsEmpty() bool { return s == "" }

func (s ShareID) String() string { return string(s) }

// CountryCode is an ISO 3166 alpha-2 country code. The wildcard "*" is a
// valid value only in search-provider configuration rows.
type CountryCode string

// Wildcard matches any country in search-provider configuration.
const Wildcard CountryCode = "*"

// ParseCountryCode normalizes and validates a two-letter country code.
func ParseCountryCode(s string) (CountryCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 2 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "country code must be two letters")
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "country code must be alphabetic")
		}
	}
	return CountryCode(s), nil
}

func (c CountryCode) String() string { return string(c) }
