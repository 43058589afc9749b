//go:build integration

package address_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"simba/internal/correction/models"
	"simba/internal/correction/store/address"
	id "simba/pkg/domain"
	"simba/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *address.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = address.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "mapping", "address")
	s.Require().NoError(err)
}

func sampleAddress(shareID id.ShareID) models.Address {
	return models.Address{
		ShareID:     shareID,
		StreetLine1: "10 Rue de Rivoli",
		CityName:    "PARIS",
		PostalCode:  "75004",
		CountryCode: "FR",
		GeocodeRank: 30,
		Latitude:    48.8556,
		Longitude:   2.3622,
		CorrectedBy: "USER",
	}
}

func (s *PostgresStoreSuite) TestSaveAndGetCorrectedRoundTrip() {
	ctx := context.Background()

	saved, err := s.store.Save(ctx, "orig-1", sampleAddress("corr-1"), "jdupont")
	s.Require().NoError(err)
	s.Equal(id.ShareID("orig-1"), saved.OriginalShareID)
	s.Equal("jdupont", saved.Address.LastUpdatedUser)

	got, err := s.store.GetCorrected(ctx, "orig-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("10 Rue de Rivoli", got.Address.StreetLine1)
	s.Equal(id.ShareID("corr-1"), got.Address.ShareID)
	s.InDelta(48.8556, got.Address.Latitude, 1e-9)
}

func (s *PostgresStoreSuite) TestGetCorrectedUnknownShareID() {
	got, err := s.store.GetCorrected(context.Background(), "missing")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *PostgresStoreSuite) TestSaveReplacesExistingCorrection() {
	ctx := context.Background()

	_, err := s.store.Save(ctx, "orig-1", sampleAddress("corr-1"), "jdupont")
	s.Require().NoError(err)

	updated := sampleAddress("corr-1")
	updated.StreetLine1 = "12 Rue de Rivoli"
	_, err = s.store.Save(ctx, "orig-1", updated, "msmith")
	s.Require().NoError(err)

	got, err := s.store.GetCorrected(ctx, "orig-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("12 Rue de Rivoli", got.Address.StreetLine1)
	s.Equal("msmith", got.Address.LastUpdatedUser)
	s.Equal("jdupont", got.Address.CreationUser, "creator survives updates")
}

func (s *PostgresStoreSuite) TestSoftDeletePreservesAddressRow() {
	ctx := context.Background()

	_, err := s.store.Save(ctx, "orig-1", sampleAddress("corr-1"), "jdupont")
	s.Require().NoError(err)

	deleted, err := s.store.SoftDelete(ctx, "orig-1")
	s.Require().NoError(err)
	s.True(deleted)

	got, err := s.store.GetCorrected(ctx, "orig-1")
	s.Require().NoError(err)
	s.Nil(got, "deleted mapping hides the correction")

	var count int
	err = s.postgres.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM address WHERE share_id = $1`, "corr-1").Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count, "address row survives the soft delete")

	deleted, err = s.store.SoftDelete(ctx, "orig-1")
	s.Require().NoError(err)
	s.False(deleted, "second delete finds no live mapping")
}

func (s *PostgresStoreSuite) TestSaveRevivesSoftDeletedMapping() {
	ctx := context.Background()

	_, err := s.store.Save(ctx, "orig-1", sampleAddress("corr-1"), "jdupont")
	s.Require().NoError(err)
	_, err = s.store.SoftDelete(ctx, "orig-1")
	s.Require().NoError(err)

	_, err = s.store.Save(ctx, "orig-1", sampleAddress("corr-1"), "jdupont")
	s.Require().NoError(err)

	got, err := s.store.GetCorrected(ctx, "orig-1")
	s.Require().NoError(err)
	s.NotNil(got)
}

func (s *PostgresStoreSuite) TestSaveMultipleMapsAllOriginals() {
	ctx := context.Background()

	results, err := s.store.SaveMultiple(ctx, sampleAddress("corr-1"),
		[]id.ShareID{"orig-1", "orig-2", "orig-3"}, "jdupont")
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	for _, r := range results {
		s.NoErrorf(r.Err, "original %s", r.OriginalShareID)
	}

	batch, err := s.store.GetCorrectedBatch(ctx, []id.ShareID{"orig-1", "orig-2", "orig-3", "orig-4"})
	s.Require().NoError(err)
	s.Len(batch, 3)
	s.Equal(id.ShareID("corr-1"), batch["orig-2"].ShareID)
}

func (s *PostgresStoreSuite) TestFindSimilarUsesTrigramThreshold() {
	ctx := context.Background()

	stored := sampleAddress("corr-1")
	stored.CompanyName = "ACME LOGISTICS"
	_, err := s.store.Save(ctx, "orig-1", stored, "jdupont")
	s.Require().NoError(err)

	candidate := sampleAddress("cand-1")
	candidate.CompanyName = "ACME LOGISTIC"
	similar, err := s.store.FindSimilar(ctx, candidate)
	s.Require().NoError(err)
	s.Require().NotNil(similar)
	s.Equal(id.ShareID("corr-1"), similar.ShareID)

	far := sampleAddress("cand-2")
	far.CityName = "MARSEILLE"
	far.PostalCode = "13001"
	far.CompanyName = "ZENITH FREIGHT"
	similar, err = s.store.FindSimilar(ctx, far)
	s.Require().NoError(err)
	s.Nil(similar, "nothing clears the similarity threshold")
}
