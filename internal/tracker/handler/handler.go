// Package handler exposes the correction-request tracker over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"simba/internal/auth"
	"simba/internal/tracker/models"
	"simba/internal/tracker/service"
	id "simba/pkg/domain"
	dErrors "simba/pkg/domain-errors"
	"simba/pkg/platform/httputil"
)

// Service is the tracker surface the handler needs.
type Service interface {
	Track(ctx context.Context, rec models.Request) (*models.Request, error)
	TrackBatch(ctx context.Context, recs []models.Request) ([]models.Request, []error)
	Requests(ctx context.Context, shareID id.ShareID) ([]models.Request, error)
	RequestsForRequesters(ctx context.Context, shareID id.ShareID, requesters []id.Requester) ([]models.Request, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, ids []int64) error
	ReprocessSweep(ctx context.Context) (service.SweepReport, error)
}

var _ Service = (*service.Service)(nil)

// Handler wires tracker endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a tracker handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts tracker endpoints. Everything but reads requires the
// editor role.
func (h *Handler) Register(r chi.Router) {
	r.Route("/request", func(r chi.Router) {
		r.Get("/count", h.handleCount)
		r.Get("/{share_id}", h.handleByShareID)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireEditor)
			r.Post("/", h.handleTrack)
			r.Post("/bulk", h.handleTrackBatch)
			r.Post("/delete", h.handleDelete)
			r.Post("/reprocess", h.handleReprocess)
		})
	})
}

func (h *Handler) handleTrack(w http.ResponseWriter, r *http.Request) {
	rec, err := httputil.Decode[models.Request](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	saved, err := h.service.Track(r.Context(), rec)
	if err != nil {
		h.writeServiceError(w, r, "track request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

// BatchResponse reports each slot of a bulk intake.
type BatchResponse struct {
	Saved  []models.Request `json:"saved"`
	Errors []string         `json:"errors"`
}

func (h *Handler) handleTrackBatch(w http.ResponseWriter, r *http.Request) {
	recs, err := httputil.Decode[[]models.Request](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	saved, errs := h.service.TrackBatch(r.Context(), recs)

	resp := BatchResponse{Saved: saved, Errors: make([]string, len(errs))}
	failures := 0
	for i, e := range errs {
		if e != nil {
			resp.Errors[i] = e.Error()
			failures++
		}
	}
	status := http.StatusOK
	if failures > 0 {
		status = http.StatusMultiStatus
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) handleByShareID(w http.ResponseWriter, r *http.Request) {
	shareID, err := id.ParseShareID(chi.URLParam(r, "share_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var rows []models.Request
	if raw := r.URL.Query()["requester"]; len(raw) > 0 {
		requesters := make([]id.Requester, len(raw))
		for i, name := range raw {
			requesters[i] = id.Requester(name)
		}
		rows, err = h.service.RequestsForRequesters(r.Context(), shareID, requesters)
	} else {
		rows, err = h.service.Requests(r.Context(), shareID)
	}
	if err != nil {
		h.writeServiceError(w, r, "list requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Count(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "count requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	payload, err := httputil.Decode[struct {
		IDs []int64 `json:"ids"`
	}](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(payload.IDs) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "ids are required"))
		return
	}
	if err := h.service.Delete(r.Context(), payload.IDs); err != nil {
		h.writeServiceError(w, r, "delete requests", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReprocess(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ReprocessSweep(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "reprocess sweep", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed", "op", op, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "op", op, "error", err)
	}
	httputil.WriteError(w, err)
}
