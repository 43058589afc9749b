//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"simba/internal/tracker/models"
	"simba/internal/tracker/store"
	id "simba/pkg/domain"
	"simba/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"address_correction_request", "mapping", "address")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedMapping(originalShareID id.ShareID) {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO address (share_id, street_line1_desc, city_nm, postal_cd, country_cd)
		VALUES ($1, '10 Rue de Rivoli', 'PARIS', '75004', 'FR')
		ON CONFLICT (share_id) DO NOTHING
	`, "corr-"+string(originalShareID))
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx, `
		INSERT INTO mapping (original_share_id, new_share_id) VALUES ($1, $2)
	`, originalShareID, "corr-"+string(originalShareID))
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestUpsertReturnsPersistedRow() {
	ctx := context.Background()

	saved, err := s.store.Upsert(ctx, models.Request{
		UniqueID:     "u-1",
		ParcelID:     "P-1",
		ShareID:      "share-1",
		Requester:    "carrier-a",
		InputMessage: []byte(`{"parcel":"P-1"}`),
	})
	s.Require().NoError(err)
	s.NotZero(saved.ID)
	s.Equal("u-1", saved.UniqueID)
	s.False(saved.CreatedDatetime.IsZero())
	s.JSONEq(`{"parcel":"P-1"}`, string(saved.InputMessage))

	update := models.Request{
		ParcelID:  "P-1",
		ShareID:   "share-1",
		Requester: "carrier-a",
		Geocode:   "48.85,2.35",
	}
	replaced, err := s.store.Upsert(ctx, update)
	s.Require().NoError(err)
	s.Equal(saved.ID, replaced.ID, "conflict identity reuses the row")
	s.Equal("48.85,2.35", replaced.Geocode)

	n, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestLifecycleTransitions() {
	ctx := context.Background()

	rec, err := s.store.Upsert(ctx, models.Request{
		ParcelID: "P-1", ShareID: "share-1", Requester: "carrier-a",
	})
	s.Require().NoError(err)

	generatedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.MarkGenerated(ctx, []models.Key{rec.Key()}, generatedAt, "raw-output"))

	pending, err := s.store.NotGenerated(ctx, "share-1", "carrier-a")
	s.Require().NoError(err)
	s.Empty(pending)

	unsent, err := s.store.GeneratedNotSent(ctx, "share-1", "carrier-a")
	s.Require().NoError(err)
	s.Require().Len(unsent, 1)
	s.Equal("raw-output", unsent[0].OutputMessageRaw)
	s.Require().NotNil(unsent[0].OutputDatetime)
	s.True(generatedAt.Equal(*unsent[0].OutputDatetime))

	s.Require().NoError(s.store.MarkSent(ctx, []models.Key{rec.Key()}, generatedAt.Add(time.Minute)))

	unsent, err = s.store.GeneratedNotSent(ctx, "share-1", "carrier-a")
	s.Require().NoError(err)
	s.Empty(unsent)
}

func (s *PostgresStoreSuite) TestPendingAndAntiJoinQueries() {
	ctx := context.Background()

	// tracked and generated, awaiting send
	rec, err := s.store.Upsert(ctx, models.Request{
		ParcelID: "P-1", ShareID: "share-1", Requester: "carrier-a",
	})
	s.Require().NoError(err)
	s.seedMapping("share-1")
	s.Require().NoError(s.store.MarkGenerated(ctx, []models.Key{rec.Key()}, time.Now().UTC(), "raw"))

	// tracked but not generated, correction saved
	_, err = s.store.Upsert(ctx, models.Request{
		ParcelID: "P-2", ShareID: "share-2", Requester: "carrier-a",
	})
	s.Require().NoError(err)
	s.seedMapping("share-2")

	// correction saved, never requested
	s.seedMapping("share-3")

	unsent, err := s.store.PendingOutputNotSent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(unsent, 1)
	s.Equal(id.ShareID("share-1"), unsent[0].ShareID)

	ungenerated, err := s.store.SavedNotGenerated(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(ungenerated, 1)
	s.Equal(id.ShareID("share-2"), ungenerated[0].ShareID)

	untracked, err := s.store.SavedWithoutAnyRequest(ctx, 10)
	s.Require().NoError(err)
	s.Equal([]id.ShareID{"share-3"}, untracked)
}

func (s *PostgresStoreSuite) TestByShareIDAndRequesters() {
	ctx := context.Background()

	for _, requester := range []id.Requester{"carrier-a", "carrier-b", "carrier-c"} {
		_, err := s.store.Upsert(ctx, models.Request{
			ParcelID: "P-1", ShareID: "share-1", Requester: requester,
		})
		s.Require().NoError(err)
	}

	rows, err := s.store.ByShareIDAndRequesters(ctx, "share-1",
		[]id.Requester{"carrier-a", "carrier-c"})
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(id.Requester("carrier-a"), rows[0].Requester)
	s.Equal(id.Requester("carrier-c"), rows[1].Requester)
}

func (s *PostgresStoreSuite) TestDeleteByIDs() {
	ctx := context.Background()

	first, err := s.store.Upsert(ctx, models.Request{
		ParcelID: "P-1", ShareID: "share-1", Requester: "carrier-a",
	})
	s.Require().NoError(err)
	_, err = s.store.Upsert(ctx, models.Request{
		ParcelID: "P-2", ShareID: "share-2", Requester: "carrier-a",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteByIDs(ctx, []int64{first.ID}))

	n, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}
