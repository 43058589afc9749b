// Package ports defines shared interfaces for the correction module.
// Interfaces live here when consumed by multiple services to avoid
// duplication; stores implement them in memory and postgres variants.
package ports

import (
	"context"
	"time"

	"simba/internal/correction/models"
	id "simba/pkg/domain"
)

// AddressStore owns the corrected-address records and the original→corrected
// identity mapping.
type AddressStore interface {
	// GetCorrected joins the live mapping onto the address row. Returns
	// nil (no error) when no live mapping exists.
	GetCorrected(ctx context.Context, originalShareID id.ShareID) (*models.CorrectedAddress, error)

	// GetCorrectedBatch returns corrections keyed by original id. Ids with
	// no live correction are absent from the map.
	GetCorrectedBatch(ctx context.Context, originalShareIDs []id.ShareID) (map[id.ShareID]models.Address, error)

	// Save upserts the address by share_id and the mapping by
	// original_share_id in one transaction.
	Save(ctx context.Context, originalShareID id.ShareID, addr models.Address, userID string) (*models.CorrectedAddress, error)

	// SaveMultiple maps every original id onto the single saved address.
	// Mapping upserts are per-id transactions; failures report per id.
	SaveMultiple(ctx context.Context, addr models.Address, originalShareIDs []id.ShareID, userID string) ([]models.SaveResult, error)

	// SoftDelete marks the live mapping deleted, leaving the address row.
	// Returns false when no live mapping existed.
	SoftDelete(ctx context.Context, originalShareID id.ShareID) (bool, error)

	// FindSimilar runs the trigram-similarity suggestion search within the
	// candidate's country. Returns nil when nothing clears the threshold.
	FindSimilar(ctx context.Context, candidate models.Address) (*models.Address, error)

	// SearchByCriteria looks up a corrected address by country and postal
	// code with optional substring filters.
	SearchByCriteria(ctx context.Context, criteria models.Address) (*models.CorrectedAddress, error)

	// ListAll streams the full corrected-address extraction.
	ListAll(ctx context.Context) ([]models.CorrectedAddress, error)

	// MissingAEFSData returns addresses without AEFS shadow data, for the
	// backfill sweep.
	MissingAEFSData(ctx context.Context, limit int) ([]models.Address, error)

	// MissingStreetSide returns addresses without a street side.
	MissingStreetSide(ctx context.Context, limit int) ([]models.Address, error)

	// MissingCorrectedBy returns addresses without provenance.
	MissingCorrectedBy(ctx context.Context, limit int) ([]models.Address, error)
}

// ConfigStore is the provider configuration registry: country→provider rows,
// provider budgets, search-provider defaults and the auto-correction city
// allow-list.
type ConfigStore interface {
	// ProvidersForCountry returns eligible providers ascending by
	// call_order (provider name breaks ties). No wildcard fallback.
	ProvidersForCountry(ctx context.Context, country id.CountryCode) ([]models.ProviderEntry, error)

	// SearchProviderForCountry resolves the default search-bar provider,
	// falling back to the wildcard "*" row. Nil when neither exists.
	SearchProviderForCountry(ctx context.Context, country id.CountryCode) (*models.Provider, error)

	GetProvider(ctx context.Context, name id.ProviderName) (*models.Provider, error)
	UpsertProvider(ctx context.Context, p models.Provider) error

	// DeleteProvider removes the provider row. Config rows must be removed
	// by the caller first; the relationship is a soft foreign key.
	DeleteProvider(ctx context.Context, name id.ProviderName) error

	GetConfig(ctx context.Context, country id.CountryCode, provider id.ProviderName) (*models.ProviderConfig, error)
	UpsertConfig(ctx context.Context, cfg models.ProviderConfig) error
	DeleteConfig(ctx context.Context, country id.CountryCode, provider id.ProviderName) error
	DeleteConfigsForProvider(ctx context.Context, provider id.ProviderName) error
	DeleteConfigsForCountry(ctx context.Context, country id.CountryCode) error
	UpsertSearchProvider(ctx context.Context, sp models.SearchProvider) error

	// IsCityAllowed gates fully automated correction on (country, city).
	IsCityAllowed(ctx context.Context, country id.CountryCode, city string) (bool, error)
	AllowedCities(ctx context.Context, country id.CountryCode) ([]string, error)
	AddAllowedCity(ctx context.Context, entry models.AllowedCity) error
}

// ProviderResultStore is the append-only raw provider response log.
type ProviderResultStore interface {
	Append(ctx context.Context, result models.ProviderResult) error

	// Latest returns the most recent result for (provider, share id), nil
	// when none was recorded.
	Latest(ctx context.Context, provider id.ProviderName, shareID id.ShareID) (*models.ProviderResult, error)
}

// AccessStore records when a corrected address was last read.
type AccessStore interface {
	Touch(ctx context.Context, originalShareID id.ShareID, at time.Time) error
}

// Decision is the quota ledger verdict for one prospective external call.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

// QuotaLedger enforces per-provider and per-country daily call budgets.
// An Allowed verdict has already recorded the call; check-and-increment is
// atomic with respect to concurrent callers for the same key. Ledger
// unavailability yields Denied (fail closed).
type QuotaLedger interface {
	// TryConsume admits one auto-correction provider call for the country.
	TryConsume(ctx context.Context, provider models.Provider, cfg models.ProviderConfig) (Decision, error)

	// TryConsumeSearchBar admits one manual search-bar call.
	TryConsumeSearchBar(ctx context.Context, provider models.Provider) (Decision, error)

	// Usage reports calls recorded today for the provider/country pair.
	Usage(ctx context.Context, provider id.ProviderName, country id.CountryCode) (int, error)
}

// ProviderClient validates an address against one external provider, bounded
// by the orchestrator's per-call timeout.
type ProviderClient interface {
	Validate(ctx context.Context, addr models.Address) (*models.Address, error)
}

// Dispatcher enqueues downstream notification fan-out. At-least-once,
// fire-and-forget: the orchestrator does not await completion.
type Dispatcher interface {
	Enqueue(ctx context.Context, originalShareID id.ShareID) error
}
