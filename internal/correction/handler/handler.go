// Package handler exposes the correction service over HTTP. Handlers stay
// thin: decode, delegate, translate errors into the JSON envelope.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"simba/internal/auth"
	"simba/internal/correction/models"
	"simba/internal/correction/service"
	id "simba/pkg/domain"
	dErrors "simba/pkg/domain-errors"
	"simba/pkg/platform/httputil"
)

// Service is the correction surface the handler needs.
type Service interface {
	Correct(ctx context.Context, original, candidate models.Address, userID string) (*models.CorrectedAddress, error)
	CorrectAsOne(ctx context.Context, candidate models.Address, originals []models.Address, userID string) ([]models.SaveResult, error)
	CheckWithProvider(ctx context.Context, addr models.Address) (*models.Address, error)
	GetCorrected(ctx context.Context, originalShareID id.ShareID) (*models.CorrectedAddress, error)
	GetCorrectedBatch(ctx context.Context, originalShareIDs []id.ShareID) (map[id.ShareID]models.Address, error)
	Delete(ctx context.Context, originalShareID id.ShareID) error
	Suggest(ctx context.Context, candidate models.Address) (*models.Address, error)
	SearchByCriteria(ctx context.Context, criteria models.Address) (*models.CorrectedAddress, error)
	ListAll(ctx context.Context) ([]models.CorrectedAddress, error)
	MandatoryFields(country id.CountryCode) []string
	IntegrateOne(ctx context.Context, originalShareID id.ShareID, candidate models.Address, userID string) (*models.CorrectedAddress, error)
	AutoCorrect(ctx context.Context, original models.Address) (service.AutoOutcome, *models.CorrectedAddress, error)
	Backfill(ctx context.Context, feed service.BackfillFeed, limit int) ([]models.Address, error)

	UpsertProvider(ctx context.Context, p models.Provider) error
	DeleteProvider(ctx context.Context, name id.ProviderName) error
	UpsertConfig(ctx context.Context, cfg models.ProviderConfig) error
	DeleteConfig(ctx context.Context, country id.CountryCode, provider id.ProviderName) error
	DeleteConfigsForCountry(ctx context.Context, country id.CountryCode) error
	UpsertSearchProvider(ctx context.Context, sp models.SearchProvider) error
	AddAllowedCity(ctx context.Context, entry models.AllowedCity) error
	AllowedCities(ctx context.Context, country id.CountryCode) ([]string, error)
	QuotaUsage(ctx context.Context, provider id.ProviderName, country id.CountryCode) (int, error)
}

var _ Service = (*service.Service)(nil)

// Handler wires correction endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a correction handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts correction endpoints. Mutating routes require the editor
// role; the caller is expected to have mounted the auth middleware already.
func (h *Handler) Register(r chi.Router) {
	r.Route("/address", func(r chi.Router) {
		r.Post("/check", h.handleCheck)
		r.Post("/suggest", h.handleSuggest)
		r.Post("/search", h.handleSearch)
		r.Get("/extract", h.handleExtract)
		r.Get("/mandatory_fields/{country}", h.handleMandatoryFields)
		r.Get("/corrected/{share_id}", h.handleGetCorrected)
		r.Post("/corrected_list", h.handleGetCorrectedList)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireEditor)
			r.Post("/update", h.handleUpdate)
			r.Post("/update_as_one", h.handleUpdateAsOne)
			r.Post("/integrate", h.handleIntegrate)
			r.Post("/auto_correct", h.handleAutoCorrect)
			r.Delete("/{share_id}", h.handleDelete)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireEditor)
		r.Put("/provider", h.handleUpsertProvider)
		r.Delete("/provider/{name}", h.handleDeleteProvider)
		r.Put("/config", h.handleUpsertConfig)
		r.Delete("/config/{country}/{provider}", h.handleDeleteConfig)
		r.Delete("/config/{country}", h.handleDeleteConfigsForCountry)
		r.Put("/search_provider", h.handleUpsertSearchProvider)
		r.Put("/allowed_city", h.handleAddAllowedCity)
		r.Get("/allowed_city/{country}", h.handleAllowedCities)
		r.Get("/quota/{provider}/{country}", h.handleQuotaUsage)
		r.Get("/backfill/{feed}", h.handleBackfill)
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[UpdateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	saved, err := h.service.Correct(r.Context(), req.Original, req.Candidate, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "manual correction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleUpdateAsOne(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[UpdateAsOneRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	results, err := h.service.CorrectAsOne(r.Context(), req.Candidate, req.Originals, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "merge correction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSaveResultResponses(results))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[CheckRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	checked, err := h.service.CheckWithProvider(r.Context(), req.Address)
	if err != nil {
		h.writeServiceError(w, r, "address check", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checked)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[SuggestRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	similar, err := h.service.Suggest(r.Context(), req.Address)
	if err != nil {
		h.writeServiceError(w, r, "suggest", err)
		return
	}
	if similar == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, similar)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[SearchRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.service.SearchByCriteria(r.Context(), req.Criteria)
	if errors.Is(err, models.ErrNoCorrectedAddressFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, "search by criteria", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.ListAll(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "data extraction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, all)
}

func (h *Handler) handleIntegrate(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[IntegrateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	saved, err := h.service.IntegrateOne(r.Context(), req.OriginalShareID, req.Candidate, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "integrate correction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleAutoCorrect(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[AutoCorrectRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	outcome, saved, err := h.service.AutoCorrect(r.Context(), req.Address)
	if err != nil {
		h.writeServiceError(w, r, "auto correction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AutoCorrectResponse{
		Outcome:   outcome.String(),
		Corrected: saved,
	})
}

func (h *Handler) handleMandatoryFields(w http.ResponseWriter, r *http.Request) {
	country, err := id.ParseCountryCode(chi.URLParam(r, "country"))
	if err != nil {
		httputil.WriteError(w, models.ErrInvalidCountryCode)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MandatoryFieldsResponse{
		CountryCode: country,
		Fields:      h.service.MandatoryFields(country),
	})
}

func (h *Handler) handleGetCorrected(w http.ResponseWriter, r *http.Request) {
	shareID, err := id.ParseShareID(chi.URLParam(r, "share_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	corrected, err := h.service.GetCorrected(r.Context(), shareID)
	if errors.Is(err, models.ErrNoCorrectedAddressFound) {
		// absence is an empty answer, not an error
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, "get corrected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, corrected)
}

func (h *Handler) handleGetCorrectedList(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[CorrectedListRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	corrected, err := h.service.GetCorrectedBatch(r.Context(), req.ShareIDs)
	if err != nil {
		h.writeServiceError(w, r, "get corrected list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, corrected)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	shareID, err := id.ParseShareID(chi.URLParam(r, "share_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), shareID); err != nil {
		h.writeServiceError(w, r, "delete correction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpsertProvider(w http.ResponseWriter, r *http.Request) {
	p, err := httputil.Decode[models.Provider](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.UpsertProvider(r.Context(), p); err != nil {
		h.writeServiceError(w, r, "upsert provider", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	name, err := id.ParseProviderName(chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteProvider(r.Context(), name); err != nil {
		h.writeServiceError(w, r, "delete provider", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := httputil.Decode[models.ProviderConfig](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.UpsertConfig(r.Context(), cfg); err != nil {
		h.writeServiceError(w, r, "upsert config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	country, err := id.ParseCountryCode(chi.URLParam(r, "country"))
	if err != nil {
		httputil.WriteError(w, models.ErrInvalidCountryCode)
		return
	}
	provider, err := id.ParseProviderName(chi.URLParam(r, "provider"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteConfig(r.Context(), country, provider); err != nil {
		h.writeServiceError(w, r, "delete config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteConfigsForCountry(w http.ResponseWriter, r *http.Request) {
	country, err := id.ParseCountryCode(chi.URLParam(r, "country"))
	if err != nil {
		httputil.WriteError(w, models.ErrInvalidCountryCode)
		return
	}
	if err := h.service.DeleteConfigsForCountry(r.Context(), country); err != nil {
		h.writeServiceError(w, r, "delete country configs", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpsertSearchProvider(w http.ResponseWriter, r *http.Request) {
	sp, err := httputil.Decode[models.SearchProvider](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.UpsertSearchProvider(r.Context(), sp); err != nil {
		h.writeServiceError(w, r, "upsert search provider", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddAllowedCity(w http.ResponseWriter, r *http.Request) {
	entry, err := httputil.Decode[models.AllowedCity](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.AddAllowedCity(r.Context(), entry); err != nil {
		h.writeServiceError(w, r, "add allowed city", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAllowedCities(w http.ResponseWriter, r *http.Request) {
	country, err := id.ParseCountryCode(chi.URLParam(r, "country"))
	if err != nil {
		httputil.WriteError(w, models.ErrInvalidCountryCode)
		return
	}
	cities, err := h.service.AllowedCities(r.Context(), country)
	if err != nil {
		h.writeServiceError(w, r, "list allowed cities", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cities)
}

func (h *Handler) handleQuotaUsage(w http.ResponseWriter, r *http.Request) {
	provider, err := id.ParseProviderName(chi.URLParam(r, "provider"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	country, err := id.ParseCountryCode(chi.URLParam(r, "country"))
	if err != nil {
		httputil.WriteError(w, models.ErrInvalidCountryCode)
		return
	}
	used, err := h.service.QuotaUsage(r.Context(), provider, country)
	if err != nil {
		h.writeServiceError(w, r, "quota usage", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"used": used})
}

func (h *Handler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	feed := service.BackfillFeed(chi.URLParam(r, "feed"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be an integer"))
			return
		}
		limit = n
	}
	rows, err := h.service.Backfill(r.Context(), feed, limit)
	if err != nil {
		h.writeServiceError(w, r, "backfill feed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

// writeServiceError logs infrastructure failures and hands the error to the
// envelope writer. Business rejections are expected traffic and logged at
// debug only.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var rej *models.Rejection
	if errors.As(err, &rej) {
		h.logger.DebugContext(r.Context(), "request rejected", "op", op, "reason", rej.Message)
	} else {
		h.logger.ErrorContext(r.Context(), "request failed", "op", op, "error", err)
	}
	httputil.WriteError(w, err)
}
