package providerconfig

import (
	"context"
	"sort"
	"strings"
	"sync"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

type configKey struct {
	country  id.CountryCode
	provider id.ProviderName
}

// InMemoryStore mirrors the postgres registry for tests and local runs.
type InMemoryStore struct {
	mu              sync.RWMutex
	providers       map[id.ProviderName]models.Provider
	configs         map[configKey]models.ProviderConfig
	searchProviders map[id.CountryCode]id.ProviderName
	allowedCities   map[configKey]struct{}
}

// NewInMemory constructs an empty in-memory registry.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		providers:       make(map[id.ProviderName]models.Provider),
		configs:         make(map[configKey]models.ProviderConfig),
		searchProviders: make(map[id.CountryCode]id.ProviderName),
		allowedCities:   make(map[configKey]struct{}),
	}
}

func (s *InMemoryStore) ProvidersForCountry(_ context.Context, country id.CountryCode) ([]models.ProviderEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.ProviderEntry
	for key, cfg := range s.configs {
		if key.country != country {
			continue
		}
		p, ok := s.providers[key.provider]
		if !ok {
			continue
		}
		entries = append(entries, models.ProviderEntry{Provider: p, Config: cfg})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Config.CallOrder != entries[j].Config.CallOrder {
			return entries[i].Config.CallOrder < entries[j].Config.CallOrder
		}
		return entries[i].Config.ProviderName < entries[j].Config.ProviderName
	})
	return entries, nil
}

func (s *InMemoryStore) SearchProviderForCountry(_ context.Context, country id.CountryCode) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.searchProviders[country]
	if !ok {
		name, ok = s.searchProviders[id.Wildcard]
	}
	if !ok {
		return nil, nil
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (s *InMemoryStore) GetProvider(_ context.Context, name id.ProviderName) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[normalize(name)]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (s *InMemoryStore) UpsertProvider(_ context.Context, p models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name] = p
	return nil
}

func (s *InMemoryStore) DeleteProvider(_ context.Context, name id.ProviderName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.providers, name)
	return nil
}

func (s *InMemoryStore) GetConfig(_ context.Context, country id.CountryCode, provider id.ProviderName) (*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[configKey{country: country, provider: provider}]
	if !ok {
		return nil, nil
	}
	out := cfg
	return &out, nil
}

func (s *InMemoryStore) UpsertConfig(_ context.Context, cfg models.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[configKey{country: cfg.CountryCode, provider: cfg.ProviderName}] = cfg
	return nil
}

func (s *InMemoryStore) DeleteConfig(_ context.Context, country id.CountryCode, provider id.ProviderName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, configKey{country: country, provider: provider})
	return nil
}

func (s *InMemoryStore) DeleteConfigsForProvider(_ context.Context, provider id.ProviderName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.configs {
		if key.provider == provider {
			delete(s.configs, key)
		}
	}
	return nil
}

func (s *InMemoryStore) DeleteConfigsForCountry(_ context.Context, country id.CountryCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.configs {
		if key.country == country {
			delete(s.configs, key)
		}
	}
	return nil
}

func (s *InMemoryStore) UpsertSearchProvider(_ context.Context, sp models.SearchProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchProviders[sp.CountryCode] = sp.ProviderName
	return nil
}

func (s *InMemoryStore) IsCityAllowed(_ context.Context, country id.CountryCode, city string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowedCities[cityKey(country, city)]
	return ok, nil
}

func (s *InMemoryStore) AllowedCities(_ context.Context, country id.CountryCode) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cities []string
	for key := range s.allowedCities {
		if key.country == country {
			cities = append(cities, string(key.provider))
		}
	}
	sort.Strings(cities)
	return cities, nil
}

func (s *InMemoryStore) AddAllowedCity(_ context.Context, entry models.AllowedCity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedCities[cityKey(entry.CountryCode, entry.CityName)] = struct{}{}
	return nil
}

// cityKey reuses configKey with the city name in the provider slot, uppercased
// to match the case-insensitive postgres lookup.
func cityKey(country id.CountryCode, city string) configKey {
	return configKey{country: country, provider: id.ProviderName(strings.ToUpper(city))}
}

func normalize(name id.ProviderName) id.ProviderName {
	return id.ProviderName(strings.ToUpper(string(name)))
}
