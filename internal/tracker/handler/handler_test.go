package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simba/internal/auth"
	cmodels "simba/internal/correction/models"
	"simba/internal/correction/store/address"
	"simba/internal/tracker/models"
	"simba/internal/tracker/service"
	"simba/internal/tracker/store"
	id "simba/pkg/domain"
	"simba/pkg/platform/httputil"
)

func newTestRouter(t *testing.T) (chi.Router, *address.InMemoryStore, *service.MemorySender) {
	t.Helper()
	addresses := address.NewInMemory()
	requests := store.NewInMemory(addresses)
	sender := service.NewMemorySender()
	svc := service.New(requests, addresses, sender,
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	// stand-in for the jwt middleware: every request is an editor
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithClaims(req.Context(), &auth.Claims{
				UserID: "jdupont",
				Roles:  []string{auth.EditorRole},
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r)
	return r, addresses, sender
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTrackAndListRoundTrip(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/request/", models.Request{
		ParcelID:  "P-1",
		ShareID:   "share-1",
		Requester: "carrier-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var saved models.Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotZero(t, saved.ID)

	rec = doJSON(t, r, http.MethodGet, "/request/share-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []models.Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "P-1", rows[0].ParcelID)
}

func TestTrackRejectsMissingIdentity(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/request/", models.Request{
		ShareID:   "share-1",
		Requester: "carrier-a",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env httputil.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Contains(t, env.Message, "parcel_id")
}

func TestTrackBatchReportsPartialFailure(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/request/bulk", []models.Request{
		{ParcelID: "P-1", ShareID: "share-1", Requester: "carrier-a"},
		{ShareID: "share-2", Requester: "carrier-a"},
	})
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Saved, 2)
	assert.NotZero(t, resp.Saved[0].ID)
	assert.Empty(t, resp.Errors[0])
	assert.Contains(t, resp.Errors[1], "parcel_id")
}

func TestListFiltersByRequester(t *testing.T) {
	r, _, _ := newTestRouter(t)

	for _, requester := range []string{"carrier-a", "carrier-b"} {
		rec := doJSON(t, r, http.MethodPost, "/request/", models.Request{
			ParcelID:  "P-1",
			ShareID:   "share-1",
			Requester: id.Requester(requester),
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, r, http.MethodGet, "/request/share-1?requester=carrier-b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []models.Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, id.Requester("carrier-b"), rows[0].Requester)
}

func TestCountAndDelete(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/request/", models.Request{
		ParcelID:  "P-1",
		ShareID:   "share-1",
		Requester: "carrier-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var saved models.Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))

	rec = doJSON(t, r, http.MethodGet, "/request/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = doJSON(t, r, http.MethodPost, "/request/delete", map[string][]int64{"ids": {saved.ID}})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/request/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestDeleteRequiresIDs(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/request/delete", map[string][]int64{"ids": {}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReprocessEndpointRunsSweep(t *testing.T) {
	r, addresses, sender := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/request/", models.Request{
		ParcelID:  "P-1",
		ShareID:   "share-1",
		Requester: "carrier-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := addresses.Save(context.Background(), "share-1", cmodels.Address{
		ShareID:     "corr-share-1",
		StreetLine1: "10 Rue de Rivoli",
		CityName:    "PARIS",
		PostalCode:  "75004",
		CountryCode: "FR",
		Latitude:    48.8556,
		Longitude:   2.3622,
		GeocodeRank: 30,
		CorrectedBy: "USER",
	}, "jdupont")
	require.NoError(t, err)

	rec = doJSON(t, r, http.MethodPost, "/request/reprocess", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report service.SweepReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Generated)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, sender.Sent(), 1)
}

func TestMutationsRequireEditorRole(t *testing.T) {
	addresses := address.NewInMemory()
	svc := service.New(store.NewInMemory(addresses), addresses, service.NewMemorySender(),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithClaims(req.Context(), &auth.Claims{UserID: "viewer", Roles: []string{"viewer"}})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r)

	rec := doJSON(t, r, http.MethodPost, "/request/", models.Request{
		ParcelID: "P-1", ShareID: "share-1", Requester: "carrier-a",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/request/count", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay open")
}
