package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simba/internal/correction/models"
	"simba/internal/correction/ports"
	"simba/internal/correction/quota"
	"simba/internal/correction/store/access"
	addrstore "simba/internal/correction/store/address"
	"simba/internal/correction/store/providerconfig"
	"simba/internal/correction/store/providerresult"
	id "simba/pkg/domain"
)

type stubClient struct {
	mu      sync.Mutex
	result  *models.Address
	err     error
	calls   int
	lastReq models.Address
}

func (c *stubClient) Validate(_ context.Context, addr models.Address) (*models.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastReq = addr
	if c.err != nil {
		return nil, c.err
	}
	out := *c.result
	out.ShareID = addr.ShareID
	return &out, nil
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type stubResolver struct {
	clients map[id.ProviderName]ports.ProviderClient
}

func (r *stubResolver) Client(name id.ProviderName) (ports.ProviderClient, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, models.ErrProviderNotKnown
	}
	return client, nil
}

type captureDispatcher struct {
	mu       sync.Mutex
	enqueued []id.ShareID
}

func (d *captureDispatcher) Enqueue(_ context.Context, originalShareID id.ShareID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enqueued = append(d.enqueued, originalShareID)
	return nil
}

func (d *captureDispatcher) all() []id.ShareID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]id.ShareID, len(d.enqueued))
	copy(out, d.enqueued)
	return out
}

type fixture struct {
	svc        *Service
	addresses  *addrstore.InMemoryStore
	configs    *providerconfig.InMemoryStore
	results    *providerresult.InMemoryStore
	access     *access.InMemoryStore
	ledger     *quota.InMemoryLedger
	resolver   *stubResolver
	dispatcher *captureDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		addresses:  addrstore.NewInMemory(),
		configs:    providerconfig.NewInMemory(),
		results:    providerresult.NewInMemory(),
		access:     access.NewInMemory(),
		ledger:     quota.NewInMemory(),
		resolver:   &stubResolver{clients: make(map[id.ProviderName]ports.ProviderClient)},
		dispatcher: &captureDispatcher{},
	}
	f.svc = New(
		f.addresses, f.configs, f.results, f.access, f.ledger, f.resolver, f.dispatcher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCallTimeout(time.Second),
	)
	return f
}

func frOriginal(shareID id.ShareID) models.Address {
	return models.Address{
		ShareID:     shareID,
		StreetLine1: "10 RUE DE RIVOLI",
		CityName:    "PARIS",
		PostalCode:  "75001",
		CountryCode: "FR",
	}
}

func frCandidate() models.Address {
	return models.Address{
		ShareID:     "CANON-1",
		StreetLine1: "10 RUE DE RIVOLI",
		StreetLine2: "BATIMENT B",
		CityName:    "PARIS",
		PostalCode:  "75001",
		CountryCode: "FR",
		Latitude:    48.8556,
		Longitude:   2.3601,
	}
}

// seedAutoProvider registers a provider, its country config and a stub client
// in one call.
func (f *fixture) seedAutoProvider(t *testing.T, name id.ProviderName, order, minRank, maxRank, countryLimit int, client ports.ProviderClient) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.configs.UpsertProvider(ctx, models.Provider{
		Name:              name,
		MaxSearchBarCalls: models.UnlimitedCalls,
		MaxGlobalCalls:    models.UnlimitedCalls,
	}))
	require.NoError(t, f.configs.UpsertConfig(ctx, models.ProviderConfig{
		CountryCode:        "FR",
		ProviderName:       name,
		MaxCallsPerCountry: countryLimit,
		MinGeocodeRank:     minRank,
		MaxGeocodeRank:     maxRank,
		CallOrder:          order,
		EnableNotification: true,
	}))
	if client != nil {
		f.resolver.clients[name] = client
	}
}

func TestCorrectSavesManualCorrection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	saved, err := f.svc.Correct(ctx, frOriginal("ORIG-1"), frCandidate(), "jdupont")
	require.NoError(t, err)
	assert.Equal(t, id.ShareID("ORIG-1"), saved.OriginalShareID)
	assert.Equal(t, id.ProviderUser, saved.Address.CorrectedBy)
	assert.Equal(t, models.ManualGeocodeRank, saved.Address.GeocodeRank)

	got, err := f.svc.GetCorrected(ctx, "ORIG-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Address.ShareID, got.Address.ShareID)

	assert.Equal(t, []id.ShareID{"ORIG-1"}, f.dispatcher.all(), "exactly one notification per save")
}

func TestCorrectSameAddressIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Correct(ctx, frOriginal("ORIG-1"), frCandidate(), "jdupont")
	require.NoError(t, err)

	_, err = f.svc.Correct(ctx, frOriginal("ORIG-1"), frCandidate(), "jdupont")
	assert.ErrorIs(t, err, models.ErrSameAddress)
	assert.Len(t, f.dispatcher.all(), 1, "rejected save must not notify")
}

func TestCorrectValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*models.Address)
		wantErr error
	}{
		{"country differs from original", func(a *models.Address) { a.CountryCode = "DE" }, models.ErrInvalidCountryCode},
		{"missing city", func(a *models.Address) { a.CityName = " " }, models.ErrInvalidCityName},
		{"missing street line 1", func(a *models.Address) { a.StreetLine1 = "" }, models.ErrInvalidStreetLine1},
		{"default coordinates", func(a *models.Address) { a.Latitude, a.Longitude = 0, 0 }, models.ErrInvalidLatitude},
		{"FR requires postal code", func(a *models.Address) { a.PostalCode = "" }, models.ErrInvalidPostalCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			candidate := frCandidate()
			tt.mutate(&candidate)

			_, err := f.svc.Correct(ctx, frOriginal("ORIG-1"), candidate, "jdupont")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, f.addresses.AddressExists("CANON-1"), "rejected corrections never persist")
			assert.Empty(t, f.dispatcher.all())
		})
	}
}

func TestCorrectPostalCodeOptionalOutsideFR(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	original := frOriginal("ORIG-1")
	original.CountryCode = "DE"
	candidate := frCandidate()
	candidate.CountryCode = "DE"
	candidate.PostalCode = ""

	_, err := f.svc.Correct(ctx, original, candidate, "jdupont")
	require.NoError(t, err)
}

func TestMandatoryFields(t *testing.T) {
	f := newFixture(t)

	fr := f.svc.MandatoryFields("FR")
	assert.Contains(t, fr, "postal_cd")
	assert.Contains(t, fr, "latitude")

	de := f.svc.MandatoryFields("DE")
	assert.NotContains(t, de, "postal_cd")
	assert.Contains(t, de, "street_line1_desc")
}

func TestCorrectAsOneMergesAndNotifiesEachOriginal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	originals := []models.Address{frOriginal("ORIG-1"), frOriginal("ORIG-2"), frOriginal("ORIG-3")}
	results, err := f.svc.CorrectAsOne(ctx, frCandidate(), originals, "jdupont")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	assert.Equal(t, 1, f.addresses.AddressCount(), "one canonical address for all originals")
	for _, orig := range []id.ShareID{"ORIG-1", "ORIG-2", "ORIG-3"} {
		got, err := f.svc.GetCorrected(ctx, orig)
		require.NoError(t, err)
		assert.Equal(t, id.ShareID("CANON-1"), got.Address.ShareID)
	}
	assert.Len(t, f.dispatcher.all(), 3)
}

func TestDeleteSoftDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Correct(ctx, frOriginal("ORIG-1"), frCandidate(), "jdupont")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "ORIG-1"))

	_, err = f.svc.GetCorrected(ctx, "ORIG-1")
	assert.ErrorIs(t, err, models.ErrNoCorrectedAddressFound)
	assert.True(t, f.addresses.AddressExists("CANON-1"), "address row survives soft delete")

	assert.ErrorIs(t, f.svc.Delete(ctx, "ORIG-1"), models.ErrNoCorrectedAddressFound)
}

func TestGetCorrectedTouchesAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Correct(ctx, frOriginal("ORIG-1"), frCandidate(), "jdupont")
	require.NoError(t, err)

	_, err = f.svc.GetCorrected(ctx, "ORIG-1")
	require.NoError(t, err)

	_, touched := f.access.LastAccess("ORIG-1")
	assert.True(t, touched)
}

func TestAutoCorrectNeedsUserWhenCityNotAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := &stubClient{result: &models.Address{GeocodeRank: 30}}
	f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 10, client)

	outcome, saved, err := f.svc.AutoCorrect(ctx, frOriginal("ORIG-1"))
	require.NoError(t, err)
	assert.Equal(t, AutoNeedsUser, outcome)
	assert.Nil(t, saved)
	assert.Zero(t, client.callCount(), "no provider call without allow-list entry")

	used, err := f.ledger.Usage(ctx, id.ProviderGoogle, "FR")
	require.NoError(t, err)
	assert.Zero(t, used, "ineligible address must not consume quota")
}

func TestAutoCorrectRejectsIncompleteOriginal(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*models.Address)
		wantErr error
	}{
		{"missing country", func(a *models.Address) { a.CountryCode = "" }, models.ErrInvalidCountryCode},
		{"missing city", func(a *models.Address) { a.CityName = "  " }, models.ErrInvalidCityName},
		{"missing street line 1", func(a *models.Address) { a.StreetLine1 = "" }, models.ErrInvalidStreetLine1},
		{"FR missing postal code", func(a *models.Address) { a.PostalCode = "" }, models.ErrInvalidPostalCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.configs.AddAllowedCity(ctx, models.AllowedCity{CountryCode: "FR", CityName: "PARIS"}))
			client := &stubClient{result: &models.Address{GeocodeRank: 30}}
			f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 10, client)

			original := frOriginal("ORIG-1")
			tt.mutate(&original)

			outcome, saved, err := f.svc.AutoCorrect(ctx, original)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, AutoNeedsUser, outcome)
			assert.Nil(t, saved)
			assert.Zero(t, client.callCount(), "rejection must precede any provider call")

			used, qerr := f.ledger.Usage(ctx, id.ProviderGoogle, "FR")
			require.NoError(t, qerr)
			assert.Zero(t, used, "rejection must not consume quota")
		})
	}
}

func TestAutoCorrectNeedsUserWithoutConfiguredProviders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.configs.AddAllowedCity(ctx, models.AllowedCity{CountryCode: "FR", CityName: "PARIS"}))

	outcome, _, err := f.svc.AutoCorrect(ctx, frOriginal("ORIG-1"))
	require.NoError(t, err)
	assert.Equal(t, AutoNeedsUser, outcome)
}

func TestAutoCorrectFallsThroughToNextProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.configs.AddAllowedCity(ctx, models.AllowedCity{CountryCode: "FR", CityName: "PARIS"}))

	failing := &stubClient{err: models.ErrProviderDown}
	good := &stubClient{result: &models.Address{
		StreetLine1: "10 RUE DE RIVOLI",
		CityName:    "PARIS",
		PostalCode:  "75001",
		CountryCode: "FR",
		GeocodeRank: 30,
		Latitude:    48.8556,
		Longitude:   2.3601,
		CorrectedBy: id.ProviderArcGIS,
	}}
	f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 10, failing)
	f.seedAutoProvider(t, id.ProviderArcGIS, 2, 20, 40, 10, good)

	outcome, saved, err := f.svc.AutoCorrect(ctx, frOriginal("ORIG-1"))
	require.NoError(t, err)
	assert.Equal(t, AutoSaved, outcome)
	require.NotNil(t, saved)
	assert.Equal(t, id.ProviderArcGIS, saved.Address.CorrectedBy)
	assert.Equal(t, 1, failing.callCount(), "first provider tried first")
	assert.Equal(t, 1, good.callCount())

	latest, err := f.results.Latest(ctx, id.ProviderArcGIS, "ORIG-1")
	require.NoError(t, err)
	assert.NotNil(t, latest, "accepted provider response is logged")

	assert.Equal(t, []id.ShareID{"ORIG-1"}, f.dispatcher.all())
}

func TestAutoCorrectRankBounds(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		rank        int
		wantOutcome AutoOutcome
	}{
		{"rank at exclusive minimum is rejected", 20, AutoDiscarded},
		{"rank just above minimum is accepted", 21, AutoSaved},
		{"rank at inclusive maximum is accepted", 40, AutoSaved},
		{"rank above maximum is rejected", 41, AutoDiscarded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.configs.AddAllowedCity(ctx, models.AllowedCity{CountryCode: "FR", CityName: "PARIS"}))
			client := &stubClient{result: &models.Address{
				StreetLine1: "10 RUE DE RIVOLI",
				CityName:    "PARIS",
				PostalCode:  "75001",
				CountryCode: "FR",
				GeocodeRank: tt.rank,
				Latitude:    48.8556,
				Longitude:   2.3601,
				CorrectedBy: id.ProviderGoogle,
			}}
			f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 10, client)

			outcome, _, err := f.svc.AutoCorrect(ctx, frOriginal("ORIG-1"))
			if tt.wantOutcome == AutoSaved {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrNoAddressFromProvider)
			}
			assert.Equal(t, tt.wantOutcome, outcome)
		})
	}
}

func TestAutoCorrectAllProvidersQuotaDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.configs.AddAllowedCity(ctx, models.AllowedCity{CountryCode: "FR", CityName: "PARIS"}))

	client := &stubClient{result: &models.Address{GeocodeRank: 30, CountryCode: "FR"}}
	f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 1, client)

	// exhaust the single-call budget
	outcome, _, err := f.svc.AutoCorrect(ctx, frOriginal("ORIG-1"))
	require.NoError(t, err)
	require.Equal(t, AutoSaved, outcome)

	outcome, _, err = f.svc.AutoCorrect(ctx, frOriginal("ORIG-2"))
	assert.ErrorIs(t, err, models.ErrMaxCallForCountryReached)
	assert.Equal(t, AutoNeedsUser, outcome)
	assert.Equal(t, 1, client.callCount(), "denied admission never reaches the provider")
}

func TestAutoCorrectUnknownProviderIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.configs.AddAllowedCity(ctx, models.AllowedCity{CountryCode: "FR", CityName: "PARIS"}))

	// GOOGLE configured in the registry but no client wired; FINDR works
	f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 10, nil)
	good := &stubClient{result: &models.Address{
		StreetLine1: "10 RUE DE RIVOLI",
		CityName:    "PARIS",
		PostalCode:  "75001",
		CountryCode: "FR",
		GeocodeRank: 30,
		Latitude:    48.8556,
		Longitude:   2.3601,
		CorrectedBy: id.ProviderFindr,
	}}
	f.seedAutoProvider(t, id.ProviderFindr, 2, 20, 40, 10, good)

	outcome, saved, err := f.svc.AutoCorrect(ctx, frOriginal("ORIG-1"))
	require.NoError(t, err)
	assert.Equal(t, AutoSaved, outcome)
	assert.Equal(t, id.ProviderFindr, saved.Address.CorrectedBy)

	used, err := f.ledger.Usage(ctx, id.ProviderGoogle, "FR")
	require.NoError(t, err)
	assert.Zero(t, used, "unregistered provider consumes no quota")
}

func TestCheckWithProviderUsesSearchBarQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	client := &stubClient{result: &models.Address{
		StreetLine1: "10 RUE DE RIVOLI",
		CityName:    "PARIS",
		CountryCode: "FR",
		GeocodeRank: 30,
	}}
	require.NoError(t, f.configs.UpsertProvider(ctx, models.Provider{
		Name:              id.ProviderGoogle,
		MaxSearchBarCalls: 1,
		MaxGlobalCalls:    models.UnlimitedCalls,
	}))
	require.NoError(t, f.configs.UpsertSearchProvider(ctx, models.SearchProvider{
		CountryCode: id.Wildcard, ProviderName: id.ProviderGoogle,
	}))
	f.resolver.clients[id.ProviderGoogle] = client

	// wildcard fallback resolves for any country
	got, err := f.svc.CheckWithProvider(ctx, frOriginal("ORIG-1"))
	require.NoError(t, err)
	assert.Equal(t, 30, got.GeocodeRank)

	_, err = f.svc.CheckWithProvider(ctx, frOriginal("ORIG-2"))
	assert.ErrorIs(t, err, models.ErrMaxSearchBarCallReached)
	assert.Equal(t, 1, client.callCount())
}

func TestCheckWithProviderNoConfiguration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CheckWithProvider(ctx, frOriginal("ORIG-1"))
	assert.ErrorIs(t, err, models.ErrNoReverseGeocodingAvailable)
}

func TestDeleteProviderCascadesConfigs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedAutoProvider(t, id.ProviderGoogle, 1, 20, 40, 10, nil)

	require.NoError(t, f.svc.DeleteProvider(ctx, id.ProviderGoogle))

	entries, err := f.configs.ProvidersForCountry(ctx, "FR")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpsertConfigRequiresKnownProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.UpsertConfig(ctx, models.ProviderConfig{
		CountryCode: "FR", ProviderName: "MAPQUEST", CallOrder: 1,
	})
	assert.ErrorIs(t, err, models.ErrProviderNotKnown)
}
