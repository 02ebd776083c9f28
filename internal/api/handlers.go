package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/journeys"
	"github.com/starford/railmiles/internal/models"
	"github.com/starford/railmiles/internal/processor"
	"github.com/starford/railmiles/internal/sse"
)

// Handler holds API route handlers.
type Handler struct {
	svc *journeys.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *journeys.Service) *Handler {
	return &Handler{svc: svc}
}

func journeyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return uuid.Nil, false
	}
	return id, true
}

// Dashboard handles GET /api/dashboard.
//
//	@Summary		Last month's journeys, map and statistics
//	@Tags			dashboard
//	@Produce		json
//	@Success		200	{object}	DashboardResponse
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListJourneys handles GET /api/journeys.
//
//	@Summary		List journeys, newest first
//	@Tags			journeys
//	@Produce		json
//	@Param			page	query		int		false	"Zero-based page number"
//	@Param			since	query		string	false	"Window: all, month or ytd"
//	@Success		200		{object}	JourneyPage
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journeys [get]
func (h *Handler) ListJourneys(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.ParseUint(r.URL.Query().Get("page"), 10, 32)
	since, err := models.ParseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, "list journeys", apperr.Invalid("%s", err))
		return
	}
	p, err := h.svc.List(r.Context(), int(page), since)
	if err != nil {
		writeError(w, "list journeys", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateJourney handles POST /api/journeys.
//
//	@Summary		Submit a journey for distance calculation
//	@Tags			journeys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NewJourneyRequest	true	"Journey to record"
//	@Success		202		{object}	SubmitResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journeys [post]
func (h *Handler) CreateJourney(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req NewJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unable to parse request body"))
		return
	}
	id, err := h.svc.Submit(r.Context(), &req)
	if err != nil {
		writeError(w, "submit journey", err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{ProcessorID: id})
}

// GetJourney handles GET /api/journeys/{id}.
//
//	@Summary		Get a journey with its map
//	@Tags			journeys
//	@Produce		json
//	@Param			id	path		string	true	"Journey ID"
//	@Success		200	{object}	JourneyDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journeys/{id} [get]
func (h *Handler) GetJourney(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get journey", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteJourney handles DELETE /api/journeys/{id}.
//
//	@Summary		Delete a journey
//	@Tags			journeys
//	@Param			id	path	string	true	"Journey ID"
//	@Success		204	"Journey deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journeys/{id} [delete]
func (h *Handler) DeleteJourney(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete journey", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateReturnJourney handles POST /api/journeys/{id}/return.
//
//	@Summary		Record the return leg of a journey
//	@Tags			journeys
//	@Produce		json
//	@Param			id	path		string	true	"Journey ID"
//	@Success		201	{object}	ReturnResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journeys/{id}/return [post]
func (h *Handler) CreateReturnJourney(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	retID, err := h.svc.CreateReturn(r.Context(), id)
	if err != nil {
		writeError(w, "create return journey", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReturnResponse{ID: retID})
}

// ProcessorStream handles GET /api/journeys/processor/{id}. It replays the
// submission's events as SSE and ends once it finishes or fails.
func (h *Handler) ProcessorStream(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Processor(id)
	if err != nil {
		writeError(w, "processor stream", err)
		return
	}

	flusher, ok := sse.StartStream(w)
	if !ok {
		return
	}
	err = job.Stream(r.Context(), func(ev processor.Event) error {
		if _, err := w.Write(sse.Message{Event: ev.Kind, Data: ev.Data}.Bytes()); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		slog.Warn("processor stream ended early", slog.String("processor", id.String()), slog.String("error", err.Error()))
	}
}

// GetStation handles GET /api/stations/{code}.
//
//	@Summary		Look up a station by CRS code
//	@Tags			stations
//	@Produce		json
//	@Param			code	path		string	true	"CRS code"
//	@Success		200		{object}	StationResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stations/{code} [get]
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Station(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, "get station", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
