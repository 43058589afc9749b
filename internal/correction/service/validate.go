package service

import (
	"strings"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// Mandatory correction fields per country. The wildcard set always applies;
// country rows add to it.
var mandatoryFieldsByCountry = map[id.CountryCode][]string{
	id.Wildcard: {"country_cd", "city_nm", "street_line1_desc", "latitude", "longitude"},
	"FR":        {"postal_cd"},
}

// MandatoryFields returns the fields a correction must fill for the country,
// wildcard defaults first.
func (s *Service) MandatoryFields(country id.CountryCode) []string {
	fields := make([]string, 0, 6)
	fields = append(fields, mandatoryFieldsByCountry[id.Wildcard]...)
	fields = append(fields, mandatoryFieldsByCountry[country]...)
	return fields
}

// validateCandidate enforces the per-country mandatory field set. checkCountry
// additionally requires the candidate to keep the original's country.
func validateCandidate(candidate *models.Address, original *models.Address, checkCountry bool) error {
	if checkCountry && original != nil && candidate.CountryCode != original.CountryCode {
		return models.ErrInvalidCountryCode
	}
	if candidate.CountryCode == "" {
		return models.ErrInvalidCountryCode
	}
	if strings.TrimSpace(candidate.CityName) == "" {
		return models.ErrInvalidCityName
	}
	if strings.TrimSpace(candidate.StreetLine1) == "" {
		return models.ErrInvalidStreetLine1
	}
	if !candidate.HasCoordinates() {
		return models.ErrInvalidLatitude
	}
	for _, field := range mandatoryFieldsByCountry[candidate.CountryCode] {
		if field == "postal_cd" && strings.TrimSpace(candidate.PostalCode) == "" {
			return models.ErrInvalidPostalCode
		}
	}
	return nil
}

// validateForAuto checks that an uncorrected original carries the structural
// fields a provider call needs. Coordinates are exempt: an address awaiting
// correction holds the default 0.0 pair.
func validateForAuto(original *models.Address) error {
	if original.CountryCode == "" {
		return models.ErrInvalidCountryCode
	}
	if strings.TrimSpace(original.CityName) == "" {
		return models.ErrInvalidCityName
	}
	if strings.TrimSpace(original.StreetLine1) == "" {
		return models.ErrInvalidStreetLine1
	}
	for _, field := range mandatoryFieldsByCountry[original.CountryCode] {
		if field == "postal_cd" && strings.TrimSpace(original.PostalCode) == "" {
			return models.ErrInvalidPostalCode
		}
	}
	return nil
}
