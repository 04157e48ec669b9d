package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/counter"
	"campaign-action-engine/internal/engine"
	"campaign-action-engine/internal/journey"
	"campaign-action-engine/internal/service"
	"campaign-action-engine/internal/storage"
)

type Handler struct {
	Ingest   *service.Ingestor
	Journeys *service.Journeys
}

func NewHandler(ingest *service.Ingestor, journeys *service.Journeys) *Handler {
	return &Handler{Ingest: ingest, Journeys: journeys}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownCampaign),
		errors.Is(err, service.ErrUnknownTemplate),
		errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDraftTemplate), counter.IsContention(err):
		return http.StatusConflict
	case errors.Is(err, service.ErrCatalogNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrListingUnsupported):
		return http.StatusNotImplemented
	case journey.IsValidationError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type eventResponse struct {
	EventID  string          `json:"eventId"`
	Effects  []engine.Effect `json:"effects"`
	Counters []counter.Entry `json:"counters"`
}

func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if req.CampaignID != "" && req.CampaignID != campaignID {
		writeError(w, http.StatusBadRequest, errors.New("campaignId does not match path"))
		return
	}
	req.CampaignID = campaignID
	req.Normalize(func() string { return ulid.Make().String() })
	if strings.TrimSpace(req.UserID) == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, errors.New("userId and action are required"))
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	res, err := h.Ingest.Ingest(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("campaign_id", campaignID).Str("event_id", req.ID).Msg("event evaluation failed")
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{EventID: req.ID, Effects: res.Effects, Counters: res.Counters})
}

func (h *Handler) GetCounters(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Ingest.Summary(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var t journey.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, service.ValidateTemplate(t))
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.Journeys.Start(chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.Journeys.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type advanceRequest struct {
	Turn uint64 `json:"turn"`
}

type advanceResponse struct {
	Outcome journey.Outcome     `json:"outcome"`
	State   service.SessionView `json:"state"`
}

// Advance answers 200 for no-op outcomes too; the outcome field tells the
// client whether the step moved.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var body advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Turn == 0 {
		writeError(w, http.StatusBadRequest, errors.New("turn is required"))
		return
	}
	v, tr, err := h.Journeys.Advance(chi.URLParam(r, "sessionID"), body.Turn)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, advanceResponse{Outcome: tr.Outcome, State: v})
}
