package domain

import (
	"strings"

	dErrors "simba/pkg/domain-errors"
)

// ProviderName tags which party produced a corrected address. USER marks a
// manual correction; the rest are external validation providers. The set is
// open: configuration may introduce providers the code has no client for,
// which surfaces as a ProviderNotKnown configuration error at call time.
type ProviderName string

const (
	ProviderUser   ProviderName = "USER"
	ProviderAEFS   ProviderName = "AEFS"
	ProviderGoogle ProviderName = "GOOGLE"
	ProviderArcGIS ProviderName = "ARCGIS"
	ProviderFindr  ProviderName = "FINDR"
)

// ParseProviderName normalizes a provider name from external input.
func ParseProviderName(s string) (ProviderName, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "provider name cannot be empty")
	}
	if len(s) > 20 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "provider name exceeds 20 characters")
	}
	return ProviderName(s), nil
}

func (p ProviderName) String() string { return string(p) }

// Requester identifies an external system awaiting a correction response
// message (AEFS, IROADS, ESTAR, ...). Open string enum.
type Requester string

const (
	RequesterAEFS   Requester = "AEFS"
	RequesterIRoads Requester = "IROADS"
	RequesterEstar  Requester = "ESTAR"
)

// ParseRequester normalizes a requester tag from external input.
func ParseRequester(s string) (Requester, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "requester cannot be empty")
	}
	return Requester(s), nil
}

func (r Requester) String() string { return string(r) }
