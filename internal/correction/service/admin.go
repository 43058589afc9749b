package service

import (
	"context"
	"fmt"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// Registry administration. These are thin passthroughs so handlers never talk
// to stores directly; the only orchestration is the delete cascade.

func (s *Service) UpsertProvider(ctx context.Context, p models.Provider) error {
	if err := s.configs.UpsertProvider(ctx, p); err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

// DeleteProvider removes a provider and all its country configurations. The
// config rows go first so no configuration ever references a missing
// provider.
func (s *Service) DeleteProvider(ctx context.Context, name id.ProviderName) error {
	if err := s.configs.DeleteConfigsForProvider(ctx, name); err != nil {
		return fmt.Errorf("delete provider configs: %w", err)
	}
	if err := s.configs.DeleteProvider(ctx, name); err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	s.logger.Info("provider removed", "provider", name)
	return nil
}

func (s *Service) UpsertConfig(ctx context.Context, cfg models.ProviderConfig) error {
	provider, err := s.configs.GetProvider(ctx, cfg.ProviderName)
	if err != nil {
		return fmt.Errorf("check provider exists: %w", err)
	}
	if provider == nil {
		return models.ErrProviderNotKnown
	}
	if err := s.configs.UpsertConfig(ctx, cfg); err != nil {
		return fmt.Errorf("upsert config: %w", err)
	}
	return nil
}

func (s *Service) DeleteConfig(ctx context.Context, country id.CountryCode, provider id.ProviderName) error {
	if err := s.configs.DeleteConfig(ctx, country, provider); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}

func (s *Service) DeleteConfigsForCountry(ctx context.Context, country id.CountryCode) error {
	if err := s.configs.DeleteConfigsForCountry(ctx, country); err != nil {
		return fmt.Errorf("delete configs for country: %w", err)
	}
	return nil
}

func (s *Service) UpsertSearchProvider(ctx context.Context, sp models.SearchProvider) error {
	provider, err := s.configs.GetProvider(ctx, sp.ProviderName)
	if err != nil {
		return fmt.Errorf("check provider exists: %w", err)
	}
	if provider == nil {
		return models.ErrProviderNotKnown
	}
	if err := s.configs.UpsertSearchProvider(ctx, sp); err != nil {
		return fmt.Errorf("upsert search provider: %w", err)
	}
	return nil
}

func (s *Service) AddAllowedCity(ctx context.Context, entry models.AllowedCity) error {
	if err := s.configs.AddAllowedCity(ctx, entry); err != nil {
		return fmt.Errorf("add allowed city: %w", err)
	}
	return nil
}

func (s *Service) AllowedCities(ctx context.Context, country id.CountryCode) ([]string, error) {
	cities, err := s.configs.AllowedCities(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("list allowed cities: %w", err)
	}
	return cities, nil
}
