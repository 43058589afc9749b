// Package models holds the address-correction domain records and the
// predicates configuration attaches to them.
package models

import (
	"time"

	id "simba/pkg/domain"
)

// UnlimitedCalls marks a quota column as having no daily ceiling.
const UnlimitedCalls = -1

// ManualGeocodeRank is assigned to user-entered corrections; human review is
// treated as a fixed mid-confidence rank.
const ManualGeocodeRank = 50

// Address is the canonical corrected address record keyed by ShareID.
// Coordinates default to 0.0 when absent and are invalid for correction
// purposes. The AEFS* fields mirror the primary ones for the one provider
// whose results are reconciled field-by-field.
type Address struct {
	ShareID            id.ShareID     `json:"share_id"`
	StreetLine1        string         `json:"street_line1_desc"`
	StreetLine2        string         `json:"street_line2_desc,omitempty"`
	StreetLine3        string         `json:"street_line3_desc,omitempty"`
	StreetLine4        string         `json:"street_line4_desc,omitempty"`
	CityName           string         `json:"city_nm"`
	PostalCode         string         `json:"postal_cd"`
	CountryCode        id.CountryCode `json:"country_cd"`
	GeocodeRank        int            `json:"geocode_rank"`
	Latitude           float64        `json:"latitude"`
	Longitude          float64        `json:"longitude"`
	StreetNumber       string         `json:"street_number,omitempty"`
	StreetName         string         `json:"street_name,omitempty"`
	UrbanCode          string         `json:"urban_cd,omitempty"`
	StateProvCode      string         `json:"state_prov_cd,omitempty"`
	ContactName        string         `json:"contact_nm,omitempty"`
	CompanyName        string         `json:"company_nm,omitempty"`
	PhoneNumber        string         `json:"phone_number,omitempty"`
	StreetSide         string         `json:"street_side,omitempty"`
	SegmentID          string         `json:"segment_id,omitempty"`
	CorrectedBy        id.ProviderName `json:"corrected_by"`
	CorrectionStopType string         `json:"correction_stop_type,omitempty"`
	CreationUser       string         `json:"creation_user,omitempty"`
	LastUpdatedUser    string         `json:"last_updated_user,omitempty"`
	CreationDate       time.Time      `json:"creation_date,omitempty"`
	LastUpdatedDate    time.Time      `json:"last_updated_date,omitempty"`

	AEFSAddressTypeCode string   `json:"aefs_address_type_cd,omitempty"`
	AEFSState           string   `json:"aefs_state,omitempty"`
	AEFSRawAddressID    string   `json:"aefs_raw_address_id,omitempty"`
	AEFSGeocodeRank     *int     `json:"aefs_geocode_rank,omitempty"`
	AEFSLatitude        *float64 `json:"aefs_latitude,omitempty"`
	AEFSLongitude       *float64 `json:"aefs_longitude,omitempty"`
}

// HasCoordinates reports whether latitude/longitude carry a real position.
// The 0.0 storage default does not count.
func (a *Address) HasCoordinates() bool {
	return a.Latitude != 0 || a.Longitude != 0
}

// SameCorrection compares the correction-relevant fields of two addresses.
// Audit columns (users, timestamps) and provenance are ignored: saving an
// identical correction is a business no-op regardless of who submits it.
func (a *Address) SameCorrection(b *Address) bool {
	if b == nil {
		return false
	}
	return a.StreetLine1 == b.StreetLine1 &&
		a.StreetLine2 == b.StreetLine2 &&
		a.StreetLine3 == b.StreetLine3 &&
		a.StreetLine4 == b.StreetLine4 &&
		a.CityName == b.CityName &&
		a.PostalCode == b.PostalCode &&
		a.CountryCode == b.CountryCode &&
		a.Latitude == b.Latitude &&
		a.Longitude == b.Longitude &&
		a.StreetNumber == b.StreetNumber &&
		a.StreetName == b.StreetName &&
		a.StateProvCode == b.StateProvCode &&
		a.ContactName == b.ContactName &&
		a.CompanyName == b.CompanyName &&
		a.PhoneNumber == b.PhoneNumber
}

// CorrectedAddress pairs an original ShareID with the canonical record its
// live mapping points to.
type CorrectedAddress struct {
	OriginalShareID id.ShareID `json:"original_share_id"`
	Address         Address    `json:"address"`
}

// Mapping links an original ShareID to its corrected Address. Soft-deleted
// rows keep their audit trail; at most one live mapping exists per original.
type Mapping struct {
	OriginalShareID id.ShareID `json:"original_share_id"`
	NewShareID      id.ShareID `json:"new_share_id"`
	ToDelete        bool       `json:"to_delete"`
	CreationUser    string     `json:"creation_user,omitempty"`
	LastUpdatedUser string     `json:"last_updated_user,omitempty"`
	CreationDate    time.Time  `json:"creation_date,omitempty"`
	LastUpdatedDate time.Time  `json:"last_updated_date,omitempty"`
}

// Provider is a registered external validation provider and its daily global
// budgets. -1 means unlimited.
type Provider struct {
	Name              id.ProviderName `json:"provider_name"`
	MaxSearchBarCalls int             `json:"max_search_bar_calls"`
	MaxGlobalCalls    int             `json:"max_global_calls"`
	LastUpdatedDate   time.Time       `json:"last_updated_date,omitempty"`
}

// InfiniteCalls reports whether the provider global budget is uncapped.
func (p *Provider) InfiniteCalls() bool {
	return p.MaxGlobalCalls == UnlimitedCalls
}

// InfiniteSearchBarCalls reports whether the search-bar budget is uncapped.
func (p *Provider) InfiniteSearchBarCalls() bool {
	return p.MaxSearchBarCalls == UnlimitedCalls
}

// ProviderConfig maps a country to an eligible provider with its acceptance
// thresholds and per-country daily budget.
type ProviderConfig struct {
	CountryCode        id.CountryCode  `json:"country_code"`
	ProviderName       id.ProviderName `json:"provider_name"`
	MaxCallsPerCountry int             `json:"max_calls_per_country"`
	MinGeocodeRank     int             `json:"min_geocode_rank"`
	MaxGeocodeRank     int             `json:"max_geocode_rank"`
	CallOrder          int             `json:"call_order"`
	EnableNotification bool            `json:"enable_notification"`
	LastUpdatedDate    time.Time       `json:"last_updated_date,omitempty"`
}

// InfiniteCalls reports whether the per-country budget is uncapped.
func (c *ProviderConfig) InfiniteCalls() bool {
	return c.MaxCallsPerCountry == UnlimitedCalls
}

// RankAcceptableForSave is the inclusive upper-bound gate on a provider rank.
func (c *ProviderConfig) RankAcceptableForSave(rank int) bool {
	return rank <= c.MaxGeocodeRank
}

// RankAcceptableForAutoCorrection is the exclusive lower-bound gate: the rank
// must be strictly greater than the configured minimum.
func (c *ProviderConfig) RankAcceptableForAutoCorrection(rank int) bool {
	return rank > c.MinGeocodeRank
}

// ProviderEntry pairs a country configuration row with its provider record,
// as returned by the registry in call order.
type ProviderEntry struct {
	Provider Provider
	Config   ProviderConfig
}

// SearchProvider assigns the default search-bar provider per country. The
// wildcard "*" row is the fallback when no country-specific row exists.
type SearchProvider struct {
	CountryCode     id.CountryCode  `json:"country_code"`
	ProviderName    id.ProviderName `json:"provider_name"`
	LastUpdatedDate time.Time       `json:"last_updated_date,omitempty"`
}

// ProviderResult is one append-only raw provider response for audit/replay.
type ProviderResult struct {
	ID           int64           `json:"id"`
	ShareID      id.ShareID      `json:"share_id"`
	ProviderName id.ProviderName `json:"provider_name"`
	Payload      []byte          `json:"payload"`
	CreationDate time.Time       `json:"creation_date"`
}

// AllowedCity is an allow-list entry gating fully automated correction.
type AllowedCity struct {
	CountryCode id.CountryCode `json:"country_code"`
	CityName    string         `json:"city_name"`
}

// SaveResult reports the outcome of one mapping upsert within SaveMultiple.
// Partial success across original ids is tolerated and reported per id.
type SaveResult struct {
	OriginalShareID id.ShareID
	Err             error
}
