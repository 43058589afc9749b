// Package providerconfig is the provider configuration registry: provider
// budgets, country→provider auto-correction config, the search-provider
// defaults with wildcard fallback, and the auto-correction city allow-list.
package providerconfig

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// PostgresStore is the production registry store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ProvidersForCountry returns the eligible providers for auto-correction,
// ascending by call_order with provider_name as the stable tiebreak. No
// wildcard fallback on this path.
func (s *PostgresStore) ProvidersForCountry(ctx context.Context, country id.CountryCode) ([]models.ProviderEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.country_code, c.provider_name, c.max_calls_per_country, c.min_geocode_rank,
		       c.max_geocode_rank, c.call_order, c.enable_notification,
		       p.provider_name, p.max_search_bar_calls, p.max_global_calls
		FROM config_country_to_provider c
		JOIN provider p ON p.provider_name = c.provider_name
		WHERE c.country_code = $1
		ORDER BY c.call_order ASC, c.provider_name ASC
	`, country)
	if err != nil {
		return nil, fmt.Errorf("list providers for country: %w", err)
	}
	defer rows.Close()

	var entries []models.ProviderEntry
	for rows.Next() {
		var e models.ProviderEntry
		if err := rows.Scan(
			&e.Config.CountryCode, &e.Config.ProviderName, &e.Config.MaxCallsPerCountry, &e.Config.MinGeocodeRank,
			&e.Config.MaxGeocodeRank, &e.Config.CallOrder, &e.Config.EnableNotification,
			&e.Provider.Name, &e.Provider.MaxSearchBarCalls, &e.Provider.MaxGlobalCalls,
		); err != nil {
			return nil, fmt.Errorf("scan provider entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider entries: %w", err)
	}
	return entries, nil
}

// SearchProviderForCountry resolves the default search-bar provider, falling
// back to the wildcard "*" row. Distinct from the auto-correction lookup,
// which never falls back.
func (s *PostgresStore) SearchProviderForCountry(ctx context.Context, country id.CountryCode) (*models.Provider, error) {
	p, err := s.searchProvider(ctx, country)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return s.searchProvider(ctx, id.Wildcard)
	}
	return p, nil
}

func (s *PostgresStore) searchProvider(ctx context.Context, country id.CountryCode) (*models.Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT p.provider_name, p.max_search_bar_calls, p.max_global_calls
		FROM country_search_provider csp
		JOIN provider p ON p.provider_name = csp.provider_name
		WHERE csp.country_code = $1
	`, country)
	var p models.Provider
	if err := row.Scan(&p.Name, &p.MaxSearchBarCalls, &p.MaxGlobalCalls); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get search provider: %w", err)
	}
	return &p, nil
}

// GetProvider fetches a provider row by normalized name, nil when absent.
func (s *PostgresStore) GetProvider(ctx context.Context, name id.ProviderName) (*models.Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT provider_name, max_search_bar_calls, max_global_calls
		FROM provider WHERE provider_name = $1
	`, strings.ToUpper(name.String()))
	var p models.Provider
	if err := row.Scan(&p.Name, &p.MaxSearchBarCalls, &p.MaxGlobalCalls); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

// UpsertProvider inserts or fully replaces a provider row.
func (s *PostgresStore) UpsertProvider(ctx context.Context, p models.Provider) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider (provider_name, max_search_bar_calls, max_global_calls)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_name) DO UPDATE SET
			max_search_bar_calls = EXCLUDED.max_search_bar_calls,
			max_global_calls = EXCLUDED.max_global_calls,
			last_updated_date = NOW()
	`, p.Name, p.MaxSearchBarCalls, p.MaxGlobalCalls)
	if err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

// DeleteProvider removes the provider row only. The relationship to config
// rows is a soft foreign key: callers cascade DeleteConfigsForProvider first.
func (s *PostgresStore) DeleteProvider(ctx context.Context, name id.ProviderName) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM provider WHERE provider_name = $1`, name); err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	return nil
}

// GetConfig fetches one country/provider configuration row, nil when absent.
func (s *PostgresStore) GetConfig(ctx context.Context, country id.CountryCode, provider id.ProviderName) (*models.ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT country_code, provider_name, max_calls_per_country, min_geocode_rank,
		       max_geocode_rank, call_order, enable_notification
		FROM config_country_to_provider
		WHERE country_code = $1 AND provider_name = $2
	`, country, provider)
	var c models.ProviderConfig
	err := row.Scan(&c.CountryCode, &c.ProviderName, &c.MaxCallsPerCountry, &c.MinGeocodeRank,
		&c.MaxGeocodeRank, &c.CallOrder, &c.EnableNotification)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get country provider config: %w", err)
	}
	return &c, nil
}

// UpsertConfig inserts or fully replaces a country/provider configuration.
func (s *PostgresStore) UpsertConfig(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_country_to_provider
			(country_code, provider_name, max_calls_per_country, min_geocode_rank, max_geocode_rank, call_order, enable_notification)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (country_code, provider_name) DO UPDATE SET
			max_calls_per_country = EXCLUDED.max_calls_per_country,
			min_geocode_rank = EXCLUDED.min_geocode_rank,
			max_geocode_rank = EXCLUDED.max_geocode_rank,
			call_order = EXCLUDED.call_order,
			enable_notification = EXCLUDED.enable_notification,
			last_updated_date = NOW()
	`, cfg.CountryCode, cfg.ProviderName, cfg.MaxCallsPerCountry, cfg.MinGeocodeRank,
		cfg.MaxGeocodeRank, cfg.CallOrder, cfg.EnableNotification)
	if err != nil {
		return fmt.Errorf("upsert country provider config: %w", err)
	}
	return nil
}

// DeleteConfig removes one country/provider configuration row.
func (s *PostgresStore) DeleteConfig(ctx context.Context, country id.CountryCode, provider id.ProviderName) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM config_country_to_provider WHERE country_code = $1 AND provider_name = $2
	`, country, provider)
	if err != nil {
		return fmt.Errorf("delete country provider config: %w", err)
	}
	return nil
}

// DeleteConfigsForProvider removes every configuration row for a provider,
// the caller-side cascade before DeleteProvider.
func (s *PostgresStore) DeleteConfigsForProvider(ctx context.Context, provider id.ProviderName) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM config_country_to_provider WHERE provider_name = $1
	`, provider)
	if err != nil {
		return fmt.Errorf("delete configs for provider: %w", err)
	}
	return nil
}

// DeleteConfigsForCountry removes every configuration row for a country.
func (s *PostgresStore) DeleteConfigsForCountry(ctx context.Context, country id.CountryCode) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM config_country_to_provider WHERE country_code = $1
	`, country)
	if err != nil {
		return fmt.Errorf("delete configs for country: %w", err)
	}
	return nil
}

// UpsertSearchProvider inserts or replaces a country search-provider row.
// country_code may be the wildcard "*".
func (s *PostgresStore) UpsertSearchProvider(ctx context.Context, sp models.SearchProvider) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO country_search_provider (country_code, provider_name)
		VALUES ($1, $2)
		ON CONFLICT (country_code) DO UPDATE SET
			provider_name = EXCLUDED.provider_name
	`, sp.CountryCode, sp.ProviderName)
	if err != nil {
		return fmt.Errorf("upsert search provider: %w", err)
	}
	return nil
}

// IsCityAllowed checks the auto-correction allow-list. City comparison is
// case-insensitive.
func (s *PostgresStore) IsCityAllowed(ctx context.Context, country id.CountryCode, city string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM auto_correction_allowed_cities
			WHERE country_code = $1 AND UPPER(city_name) = UPPER($2)
		)
	`, country, city).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check allowed city: %w", err)
	}
	return exists, nil
}

// AllowedCities lists the allow-list entries for a country.
func (s *PostgresStore) AllowedCities(ctx context.Context, country id.CountryCode) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT city_name FROM auto_correction_allowed_cities WHERE country_code = $1 ORDER BY city_name
	`, country)
	if err != nil {
		return nil, fmt.Errorf("list allowed cities: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("scan allowed city: %w", err)
		}
		cities = append(cities, city)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowed cities: %w", err)
	}
	return cities, nil
}

// AddAllowedCity inserts an allow-list entry, idempotently.
func (s *PostgresStore) AddAllowedCity(ctx context.Context, entry models.AllowedCity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_correction_allowed_cities (country_code, city_name)
		VALUES ($1, $2)
		ON CONFLICT (country_code, city_name) DO NOTHING
	`, entry.CountryCode, entry.CityName)
	if err != nil {
		return fmt.Errorf("add allowed city: %w", err)
	}
	return nil
}
