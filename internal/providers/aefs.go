package providers

import (
	"context"
	"net/http"
	"time"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// AEFSClient validates addresses against the internal AEFS service. AEFS is
// the richest provider: its responses carry street-side and segment data, and
// its geocode outcome is kept in the shadow columns alongside the primary
// correction for later reconciliation.
type AEFSClient struct {
	endpoint string
	client   *http.Client
}

// NewAEFS constructs an AEFS client with the shared per-call timeout.
func NewAEFS(endpoint string, timeout time.Duration) *AEFSClient {
	return &AEFSClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type aefsRequest struct {
	StreetLine1 string `json:"street_line1_desc"`
	StreetLine2 string `json:"street_line2_desc,omitempty"`
	CityName    string `json:"city_nm"`
	PostalCode  string `json:"postal_cd"`
	CountryCode string `json:"country_cd"`
}

type aefsResponse struct {
	StreetLine1     string  `json:"street_line1_desc"`
	StreetLine2     string  `json:"street_line2_desc"`
	CityName        string  `json:"city_nm"`
	PostalCode      string  `json:"postal_cd"`
	CountryCode     string  `json:"country_cd"`
	StreetNumber    string  `json:"street_number"`
	StreetName      string  `json:"street_name"`
	UrbanCode       string  `json:"urban_cd"`
	StateProvCode   string  `json:"state_prov_cd"`
	StreetSide      string  `json:"street_side"`
	SegmentID       string  `json:"segment_id"`
	GeocodeRank     int     `json:"geocode_rank"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	AddressTypeCode string  `json:"address_type_cd"`
	State           string  `json:"state"`
	RawAddressID    string  `json:"raw_address_id"`
}

// Validate runs the candidate through AEFS geocoding.
func (c *AEFSClient) Validate(ctx context.Context, addr models.Address) (*models.Address, error) {
	req := aefsRequest{
		StreetLine1: addr.StreetLine1,
		StreetLine2: addr.StreetLine2,
		CityName:    addr.CityName,
		PostalCode:  addr.PostalCode,
		CountryCode: addr.CountryCode.String(),
	}
	var resp aefsResponse
	if err := postJSON(ctx, c.client, c.endpoint, req, &resp); err != nil {
		return nil, err
	}

	rank := resp.GeocodeRank
	lat, lon := resp.Latitude, resp.Longitude
	out := models.Address{
		ShareID:             addr.ShareID,
		StreetLine1:         resp.StreetLine1,
		StreetLine2:         resp.StreetLine2,
		CityName:            resp.CityName,
		PostalCode:          resp.PostalCode,
		CountryCode:         id.CountryCode(resp.CountryCode),
		GeocodeRank:         resp.GeocodeRank,
		Latitude:            resp.Latitude,
		Longitude:           resp.Longitude,
		StreetNumber:        resp.StreetNumber,
		StreetName:          resp.StreetName,
		UrbanCode:           resp.UrbanCode,
		StateProvCode:       resp.StateProvCode,
		StreetSide:          resp.StreetSide,
		SegmentID:           resp.SegmentID,
		CorrectedBy:         id.ProviderAEFS,
		ContactName:         addr.ContactName,
		CompanyName:         addr.CompanyName,
		PhoneNumber:         addr.PhoneNumber,
		AEFSAddressTypeCode: resp.AddressTypeCode,
		AEFSState:           resp.State,
		AEFSRawAddressID:    resp.RawAddressID,
		AEFSGeocodeRank:     &rank,
		AEFSLatitude:        &lat,
		AEFSLongitude:       &lon,
	}
	return &out, nil
}
