package providers

import (
	"context"
	"net/http"
	"time"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// GeocoderClient is the shared client for the geocoding providers that speak
// the common validation contract (Google, ArcGIS, Findr). They differ only in
// endpoint and in the provenance they stamp on the result.
type GeocoderClient struct {
	name     id.ProviderName
	endpoint string
	client   *http.Client
}

// NewGoogle constructs the Google geocoding client.
func NewGoogle(endpoint string, timeout time.Duration) *GeocoderClient {
	return newGeocoder(id.ProviderGoogle, endpoint, timeout)
}

// NewArcGIS constructs the ArcGIS geocoding client.
func NewArcGIS(endpoint string, timeout time.Duration) *GeocoderClient {
	return newGeocoder(id.ProviderArcGIS, endpoint, timeout)
}

// NewFindr constructs the Findr geocoding client.
func NewFindr(endpoint string, timeout time.Duration) *GeocoderClient {
	return newGeocoder(id.ProviderFindr, endpoint, timeout)
}

func newGeocoder(name id.ProviderName, endpoint string, timeout time.Duration) *GeocoderClient {
	return &GeocoderClient{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type geocodeRequest struct {
	StreetLine1 string `json:"street_line1_desc"`
	StreetLine2 string `json:"street_line2_desc,omitempty"`
	CityName    string `json:"city_nm"`
	PostalCode  string `json:"postal_cd"`
	CountryCode string `json:"country_cd"`
}

type geocodeResponse struct {
	StreetLine1   string  `json:"street_line1_desc"`
	StreetLine2   string  `json:"street_line2_desc"`
	CityName      string  `json:"city_nm"`
	PostalCode    string  `json:"postal_cd"`
	CountryCode   string  `json:"country_cd"`
	StreetNumber  string  `json:"street_number"`
	StreetName    string  `json:"street_name"`
	StateProvCode string  `json:"state_prov_cd"`
	GeocodeRank   int     `json:"geocode_rank"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// Validate geocodes the candidate and stamps the provider as provenance.
func (c *GeocoderClient) Validate(ctx context.Context, addr models.Address) (*models.Address, error) {
	req := geocodeRequest{
		StreetLine1: addr.StreetLine1,
		StreetLine2: addr.StreetLine2,
		CityName:    addr.CityName,
		PostalCode:  addr.PostalCode,
		CountryCode: addr.CountryCode.String(),
	}
	var resp geocodeResponse
	if err := postJSON(ctx, c.client, c.endpoint, req, &resp); err != nil {
		return nil, err
	}

	out := models.Address{
		ShareID:       addr.ShareID,
		StreetLine1:   resp.StreetLine1,
		StreetLine2:   resp.StreetLine2,
		CityName:      resp.CityName,
		PostalCode:    resp.PostalCode,
		CountryCode:   id.CountryCode(resp.CountryCode),
		GeocodeRank:   resp.GeocodeRank,
		Latitude:      resp.Latitude,
		Longitude:     resp.Longitude,
		StreetNumber:  resp.StreetNumber,
		StreetName:    resp.StreetName,
		StateProvCode: resp.StateProvCode,
		CorrectedBy:   c.name,
		ContactName:   addr.ContactName,
		CompanyName:   addr.CompanyName,
		PhoneNumber:   addr.PhoneNumber,
	}
	return &out, nil
}
