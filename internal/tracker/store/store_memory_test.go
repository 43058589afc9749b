package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simba/internal/tracker/models"
	id "simba/pkg/domain"
)

type stubMappings struct {
	originals []id.ShareID
}

func (s *stubMappings) LiveOriginals(context.Context) ([]id.ShareID, error) {
	return s.originals, nil
}

func newRequest(parcel string, shareID id.ShareID, requester id.Requester) models.Request {
	return models.Request{
		ParcelID:     parcel,
		ShareID:      shareID,
		Requester:    requester,
		InputMessage: json.RawMessage(`{"parcel":"` + parcel + `"}`),
	}
}

func TestUpsertKeepsIdentityOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nil)

	first, err := s.Upsert(ctx, newRequest("P-1", "share-1", "carrier-a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)
	assert.False(t, first.CreatedDatetime.IsZero())

	update := newRequest("P-1", "share-1", "carrier-a")
	update.Geocode = "48.85,2.35"
	second, err := s.Upsert(ctx, update)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "conflict identity reuses the row")
	assert.Equal(t, first.CreatedDatetime, second.CreatedDatetime)
	assert.Equal(t, "48.85,2.35", second.Geocode)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertDistinguishesRequesters(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nil)

	_, err := s.Upsert(ctx, newRequest("P-1", "share-1", "carrier-a"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, newRequest("P-1", "share-1", "carrier-b"))
	require.NoError(t, err)

	all, err := s.ByShareID(ctx, "share-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := s.ByShareIDAndRequesters(ctx, "share-1", []id.Requester{"carrier-b"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, id.Requester("carrier-b"), only[0].Requester)
}

func TestBulkUpsertReportsPerRecord(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nil)

	saved, errs := s.BulkUpsert(ctx, []models.Request{
		newRequest("P-1", "share-1", "carrier-a"),
		newRequest("P-2", "share-2", "carrier-a"),
	})
	require.Len(t, saved, 2)
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.NotEqual(t, saved[0].ID, saved[1].ID)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nil)

	rec, err := s.Upsert(ctx, newRequest("P-1", "share-1", "carrier-a"))
	require.NoError(t, err)

	pending, err := s.NotGenerated(ctx, "share-1", "carrier-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	generatedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkGenerated(ctx, []models.Key{rec.Key()}, generatedAt, "OUT|raw|payload"))

	pending, err = s.NotGenerated(ctx, "share-1", "carrier-a")
	require.NoError(t, err)
	assert.Empty(t, pending)

	unsent, err := s.GeneratedNotSent(ctx, "share-1", "carrier-a")
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, "OUT|raw|payload", unsent[0].OutputMessageRaw)
	require.NotNil(t, unsent[0].OutputDatetime)
	assert.Equal(t, generatedAt, *unsent[0].OutputDatetime)

	sentAt := generatedAt.Add(time.Minute)
	require.NoError(t, s.MarkSent(ctx, []models.Key{rec.Key()}, sentAt))

	unsent, err = s.GeneratedNotSent(ctx, "share-1", "carrier-a")
	require.NoError(t, err)
	assert.Empty(t, unsent)
}

func TestMarkGeneratedIgnoresUnknownKeys(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nil)

	err := s.MarkGenerated(ctx, []models.Key{{ParcelID: "nope", ShareID: "nope", Requester: "nope"}}, time.Now(), "raw")
	assert.NoError(t, err)
}

func TestPendingOutputNotSentOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s := NewInMemory(nil).WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	var keys []models.Key
	for _, share := range []id.ShareID{"share-3", "share-1", "share-2"} {
		rec, err := s.Upsert(ctx, newRequest("P-"+string(share), share, "carrier-a"))
		require.NoError(t, err)
		keys = append(keys, rec.Key())
	}
	require.NoError(t, s.MarkGenerated(ctx, keys, base, "raw"))

	pending, err := s.PendingOutputNotSent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id.ShareID("share-3"), pending[0].ShareID, "oldest update first")
	assert.Equal(t, id.ShareID("share-1"), pending[1].ShareID)
}

func TestSavedWithoutAnyRequest(t *testing.T) {
	ctx := context.Background()
	mappings := &stubMappings{originals: []id.ShareID{"share-1", "share-2", "share-3"}}
	s := NewInMemory(mappings)

	_, err := s.Upsert(ctx, newRequest("P-2", "share-2", "carrier-a"))
	require.NoError(t, err)

	untracked, err := s.SavedWithoutAnyRequest(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []id.ShareID{"share-1", "share-3"}, untracked)

	limited, err := s.SavedWithoutAnyRequest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []id.ShareID{"share-1"}, limited)
}

func TestSavedNotGenerated(t *testing.T) {
	ctx := context.Background()
	mappings := &stubMappings{originals: []id.ShareID{"share-1", "share-2"}}
	s := NewInMemory(mappings)

	fresh, err := s.Upsert(ctx, newRequest("P-1", "share-1", "carrier-a"))
	require.NoError(t, err)
	done, err := s.Upsert(ctx, newRequest("P-2", "share-2", "carrier-a"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, newRequest("P-3", "share-orphan", "carrier-a"))
	require.NoError(t, err)

	require.NoError(t, s.MarkGenerated(ctx, []models.Key{done.Key()}, time.Now(), "raw"))

	pending, err := s.SavedNotGenerated(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only live mappings with ungenerated requests qualify")
	assert.Equal(t, fresh.ShareID, pending[0].ShareID)
}

func TestDeleteByIDs(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nil)

	first, err := s.Upsert(ctx, newRequest("P-1", "share-1", "carrier-a"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, newRequest("P-2", "share-2", "carrier-a"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteByIDs(ctx, []int64{first.ID}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rest, err := s.ByShareID(ctx, "share-2")
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
