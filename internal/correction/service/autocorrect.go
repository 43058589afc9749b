package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"simba/internal/correction/models"
	"simba/internal/correction/ports"
	id "simba/pkg/domain"
)

// AutoOutcome classifies the result of an auto-correction attempt.
type AutoOutcome int

const (
	// AutoSaved means a provider result was accepted and persisted.
	AutoSaved AutoOutcome = iota
	// AutoNeedsUser means the address is not eligible for automation and a
	// human has to correct it.
	AutoNeedsUser
	// AutoDiscarded means every eligible provider was tried and none
	// produced an acceptable result.
	AutoDiscarded
)

func (o AutoOutcome) String() string {
	switch o {
	case AutoSaved:
		return "saved"
	case AutoNeedsUser:
		return "needs_user"
	case AutoDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// AutoCorrect attempts a fully automated correction of the original address.
// Eligibility requires a structurally complete original, the (country, city)
// pair on the allow-list and at least one configured provider. Providers are then tried in call order:
// each call is admitted through the quota ledger first, bounded by the
// per-call timeout, and its raw result logged. The first result whose rank
// clears the country thresholds wins.
func (s *Service) AutoCorrect(ctx context.Context, original models.Address) (AutoOutcome, *models.CorrectedAddress, error) {
	if err := validateForAuto(&original); err != nil {
		s.metrics.IncrementOutcome("auto", "needs_user")
		return AutoNeedsUser, nil, err
	}

	allowed, err := s.configs.IsCityAllowed(ctx, original.CountryCode, original.CityName)
	if err != nil {
		return AutoNeedsUser, nil, fmt.Errorf("check allowed city: %w", err)
	}
	if !allowed {
		s.metrics.IncrementOutcome("auto", "needs_user")
		return AutoNeedsUser, nil, nil
	}

	entries, err := s.configs.ProvidersForCountry(ctx, original.CountryCode)
	if err != nil {
		return AutoNeedsUser, nil, fmt.Errorf("list providers: %w", err)
	}
	if len(entries) == 0 {
		s.metrics.IncrementOutcome("auto", "needs_user")
		return AutoNeedsUser, nil, nil
	}

	result, allDenied := s.tryProviders(ctx, original, entries)
	if result == nil {
		if allDenied {
			s.metrics.IncrementOutcome("auto", "quota_denied")
			return AutoNeedsUser, nil, models.ErrMaxCallForCountryReached
		}
		s.metrics.IncrementOutcome("auto", "discarded")
		return AutoDiscarded, nil, models.ErrNoAddressFromProvider
	}

	existing, err := s.addresses.GetCorrected(ctx, original.ShareID)
	if err != nil {
		return AutoDiscarded, nil, fmt.Errorf("load existing correction: %w", err)
	}
	if existing != nil && result.address.SameCorrection(&existing.Address) {
		s.metrics.IncrementOutcome("auto", "same_address")
		return AutoDiscarded, nil, models.ErrSameAddress
	}

	saved, err := s.addresses.Save(ctx, original.ShareID, result.address, string(result.address.CorrectedBy))
	if err != nil {
		s.metrics.IncrementOutcome("auto", "error")
		return AutoDiscarded, nil, fmt.Errorf("save auto correction: %w", err)
	}

	s.logger.Info("auto correction saved",
		"original_share_id", original.ShareID,
		"provider", result.address.CorrectedBy,
		"geocode_rank", result.address.GeocodeRank,
	)
	s.metrics.IncrementOutcome("auto", "saved")
	if result.notify {
		s.notify(original.ShareID)
	}
	return AutoSaved, saved, nil
}

type providerResult struct {
	address models.Address
	notify  bool
}

// tryProviders walks the configured providers in order and returns the first
// acceptable result, nil when every provider was exhausted. Provider faults
// and quota denials fall through to the next provider. allDenied reports that
// every single provider was skipped by the quota ledger, which callers treat
// as the country limit being reached rather than a bad address.
func (s *Service) tryProviders(ctx context.Context, original models.Address, entries []models.ProviderEntry) (result *providerResult, allDenied bool) {
	denied := 0
	for i := range entries {
		entry := &entries[i]
		client, err := s.clients.Client(entry.Provider.Name)
		if err != nil {
			s.logger.Error("provider configured but not registered",
				"provider", entry.Provider.Name,
				"country", entry.Config.CountryCode,
			)
			continue
		}

		decision, err := s.quota.TryConsume(ctx, entry.Provider, entry.Config)
		if err != nil {
			s.logger.Error("quota ledger error, provider skipped",
				"provider", entry.Provider.Name,
				"country", entry.Config.CountryCode,
				"error", err,
			)
		}
		if decision != ports.Allowed {
			s.metrics.IncrementQuotaDenial(entry.Provider.Name.String(), entry.Config.CountryCode.String())
			denied++
			continue
		}

		corrected := s.callProvider(ctx, client, entry.Provider.Name, original)
		if corrected == nil {
			continue
		}

		if !entry.Config.RankAcceptableForAutoCorrection(corrected.GeocodeRank) ||
			!entry.Config.RankAcceptableForSave(corrected.GeocodeRank) {
			s.metrics.ObserveProviderCall(entry.Provider.Name.String(), "rejected", 0)
			s.logger.Info("provider result rank out of bounds",
				"provider", entry.Provider.Name,
				"geocode_rank", corrected.GeocodeRank,
				"min", entry.Config.MinGeocodeRank,
				"max", entry.Config.MaxGeocodeRank,
			)
			continue
		}
		return &providerResult{address: *corrected, notify: entry.Config.EnableNotification}, false
	}
	return nil, denied > 0 && denied == len(entries)
}

// callProvider runs one bounded validation call and logs the raw result.
// Any provider fault returns nil so iteration falls through.
func (s *Service) callProvider(ctx context.Context, client ports.ProviderClient, name id.ProviderName, original models.Address) *models.Address {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := s.now()
	corrected, err := client.Validate(callCtx, original)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveProviderCall(name.String(), "error", elapsed)
		var rej *models.Rejection
		if errors.As(err, &rej) {
			s.logger.Warn("provider call rejected",
				"provider", name,
				"share_id", original.ShareID,
				"reason", rej.Message,
			)
		} else {
			s.logger.Error("provider call failed",
				"provider", name,
				"share_id", original.ShareID,
				"error", err,
			)
		}
		return nil
	}
	s.metrics.ObserveProviderCall(name.String(), "accepted", elapsed)
	s.appendResult(ctx, name, original.ShareID, corrected)
	return corrected
}

// appendResult best-effort logs the raw provider response. The audit log
// never blocks a correction.
func (s *Service) appendResult(ctx context.Context, name id.ProviderName, shareID id.ShareID, corrected *models.Address) {
	payload, err := json.Marshal(corrected)
	if err != nil {
		s.logger.Error("encode provider result", "provider", name, "error", err)
		return
	}
	err = s.results.Append(ctx, models.ProviderResult{
		ShareID:      shareID,
		ProviderName: name,
		Payload:      payload,
		CreationDate: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("append provider result", "provider", name, "error", err)
	}
}

// CheckWithProvider validates an address through the country's search-bar
// provider without persisting anything. Quota exhaustion surfaces as the
// search-bar limit rejection; a missing provider configuration surfaces as
// no-reverse-geocoding.
func (s *Service) CheckWithProvider(ctx context.Context, addr models.Address) (*models.Address, error) {
	provider, err := s.configs.SearchProviderForCountry(ctx, addr.CountryCode)
	if err != nil {
		return nil, fmt.Errorf("resolve search provider: %w", err)
	}
	if provider == nil {
		return nil, models.ErrNoReverseGeocodingAvailable
	}

	client, err := s.clients.Client(provider.Name)
	if err != nil {
		s.logger.Error("search provider configured but not registered", "provider", provider.Name)
		return nil, models.ErrProviderNotKnown
	}

	decision, err := s.quota.TryConsumeSearchBar(ctx, *provider)
	if err != nil {
		s.logger.Error("quota ledger error on search bar", "provider", provider.Name, "error", err)
	}
	if decision != ports.Allowed {
		s.metrics.IncrementQuotaDenial(provider.Name.String(), "search_bar")
		return nil, models.ErrMaxSearchBarCallReached
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	corrected, err := client.Validate(callCtx, addr)
	if err != nil {
		return nil, err
	}
	return corrected, nil
}
