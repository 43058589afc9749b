package models

import (
	"fmt"

	id "simba/pkg/domain"
	dErrors "simba/pkg/domain-errors"
)

// Rejection is a business-level refusal surfaced to callers. It carries the
// offending field for validation failures and an operator hint. Rejections
// are detected before or during orchestration and never crash the request.
type Rejection struct {
	Code    dErrors.Code
	Message string
	Field   string
	Info    string
}

func (r *Rejection) Error() string { return r.Message }

// Is matches rejections by identity so sentinel comparisons with errors.Is
// work across wrapping.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t == r
}

// HTTPEnvelope exposes the code and envelope detail to the transport layer.
func (r *Rejection) HTTPEnvelope() (dErrors.Code, string, string) {
	return r.Code, r.Field, r.Info
}

// Validation rejections: caller-fixable, surfaced before any external call or
// write, never retried automatically.
var (
	ErrInvalidPostalCode = &Rejection{
		Code:    dErrors.CodeConflict,
		Message: "wrong postal code format",
		Field:   "postal_cd",
	}
	ErrInvalidLatitude = &Rejection{
		Code:    dErrors.CodeConflict,
		Message: "lat,lon is mandatory and must be corrected",
		Field:   "latitude",
	}
	ErrInvalidCityName = &Rejection{
		Code:    dErrors.CodeConflict,
		Message: "city name is mandatory",
		Field:   "city_nm",
	}
	ErrInvalidStreetLine1 = &Rejection{
		Code:    dErrors.CodeConflict,
		Message: "street line 1 is mandatory",
		Field:   "street_line_1",
	}
	ErrInvalidCountryCode = &Rejection{
		Code:    dErrors.CodeConflict,
		Message: "the country code is not the same as the original",
		Field:   "country_cd",
	}
)

// Business conflicts: no state change, non-fatal.
var ErrSameAddress = &Rejection{
	Code:    dErrors.CodeConflict,
	Message: "at least one field of the address must change",
	Info:    "this correction already exists with the same data",
}

// Empty-result signals: not failures, callers treat as nothing to show.
var (
	ErrNoCorrectedAddressFound = &Rejection{
		Code:    dErrors.CodeNotFound,
		Message: "no corrected address found",
	}
	ErrNoAddressFromProvider = &Rejection{
		Code:    dErrors.CodeNotFound,
		Message: "no address found for the provider",
	}
	ErrNoReverseGeocodingAvailable = &Rejection{
		Code:    dErrors.CodeNotFound,
		Message: "no reverse geocoding available",
	}
)

// ErrUnknownBackfillFeed rejects a maintenance-feed request for a feed name
// that does not exist.
var ErrUnknownBackfillFeed = &Rejection{
	Code:    dErrors.CodeInvalidInput,
	Message: "unknown backfill feed",
	Field:   "feed",
}

// Quota exhaustion: expected steady-state under load, logged at low severity,
// surfaced as try-later, never retried within the same request.
var (
	ErrMaxCallForCountryReached = &Rejection{
		Code:    dErrors.CodeRateLimited,
		Message: "max calls for the country configuration have been reached",
		Info:    "call limit reached",
	}
	ErrMaxSearchBarCallReached = &Rejection{
		Code:    dErrors.CodeRateLimited,
		Message: "max calls to provider or search bar have been reached",
		Info:    "call limit reached",
	}
)

// NotAllowedToCall builds the per-provider daily-limit rejection.
func NotAllowedToCall(provider id.ProviderName) *Rejection {
	return &Rejection{
		Code:    dErrors.CodeRateLimited,
		Message: fmt.Sprintf("%s limit has been reached, wait until tomorrow to call %s", provider, provider),
	}
}

// Provider failures: external-dependency faults. Orchestration falls through
// to the next configured provider instead of failing the request.
var (
	ErrProviderUnavailable = &Rejection{
		Code:    dErrors.CodeUnavailable,
		Message: "validation provider is unavailable",
		Info:    "the address has not been corrected, retry in a moment",
	}
	ErrProviderCannotValidate = &Rejection{
		Code:    dErrors.CodeUnavailable,
		Message: "provider cannot validate the address",
		Info:    "the address seems to be invalid according to the provider",
	}
	ErrProviderDown = &Rejection{
		Code:    dErrors.CodeUnavailable,
		Message: "provider is down",
		Info:    "provider process is currently not available due to technical issues",
	}
)

// ErrProviderNotKnown flags a provider present in configuration but absent
// from the code-known client registry. Operator-facing defect, logged at high
// severity by the orchestrator.
var ErrProviderNotKnown = &Rejection{
	Code:    dErrors.CodeInternal,
	Message: "provider is configured in the database but not known to the code",
	Info:    "configuration mismatch, correction is blocked until fixed",
}

// ErrNotAuthorized is a role/permission failure surfaced before any mutation.
var ErrNotAuthorized = &Rejection{
	Code:    dErrors.CodeUnauthorized,
	Message: "action not authorized",
	Info:    "missing the role required to process this action",
}
