// Package httpapi exposes a field engine over HTTP so a simulator running
// in another process can ask for sowing decisions and report harvests.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/rotation"
)

// Error codes returned in the JSON error body.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternal       = "INTERNAL"
	ErrCodeStale          = "CHECKPOINT_STALE"
)

// Server serves the field endpoints of one engine.
type Server struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

type cropRequest struct {
	Crop string `json:"crop"`
}

type createFieldResponse struct {
	FieldID string `json:"field_id"`
}

type fieldsResponse struct {
	Fields []string `json:"fields"`
}

type historyResponse struct {
	FieldID       string `json:"field_id"`
	PreviousCrop1 string `json:"previous_crop1"`
	PreviousCrop2 string `json:"previous_crop2"`
}

type sowingCheckResponse struct {
	FieldID string `json:"field_id"`
	Crop    string `json:"crop"`
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHandler builds the router. gatherer may be nil to leave out /metrics.
func NewHandler(eng *engine.Engine, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Engine: eng, Logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/fields", func(r chi.Router) {
		r.Post("/", s.CreateField)
		r.Get("/", s.ListFields)
		r.Route("/{fieldID}", func(r chi.Router) {
			r.Get("/", s.GetHistory)
			r.Post("/sowing-checks", s.CheckSowing)
			r.Post("/harvests", s.RecordHarvest)
		})
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// CreateField handles POST /fields.
func (s *Server) CreateField(w http.ResponseWriter, r *http.Request) {
	id, err := s.Engine.CreateField(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createFieldResponse{FieldID: id})
}

// ListFields handles GET /fields.
func (s *Server) ListFields(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Fields(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fieldsResponse{Fields: ids})
}

// GetHistory handles GET /fields/{fieldID}.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fieldID")
	h, err := s.Engine.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, historyResponse{FieldID: id, PreviousCrop1: h.PreviousCrop1, PreviousCrop2: h.PreviousCrop2})
}

// CheckSowing handles POST /fields/{fieldID}/sowing-checks.
func (s *Server) CheckSowing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fieldID")
	req, ok := s.decodeCrop(w, r)
	if !ok {
		return
	}
	d, err := s.Engine.CheckSowing(r.Context(), id, req.Crop)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sowingCheckResponse{
		FieldID: id,
		Crop:    d.Crop.String(),
		Allowed: d.Allowed,
		Rule:    string(d.Rule),
	})
}

// RecordHarvest handles POST /fields/{fieldID}/harvests.
func (s *Server) RecordHarvest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fieldID")
	req, ok := s.decodeCrop(w, r)
	if !ok {
		return
	}
	h, err := s.Engine.RecordHarvest(r.Context(), id, req.Crop)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, historyResponse{FieldID: id, PreviousCrop1: h.PreviousCrop1, PreviousCrop2: h.PreviousCrop2})
}

func (s *Server) decodeCrop(w http.ResponseWriter, r *http.Request) (cropRequest, bool) {
	var req cropRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.Logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Code: ErrCodeInvalidRequest, Message: "invalid request body: " + err.Error()})
		return req, false
	}
	if req.Crop == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Code: ErrCodeInvalidRequest, Message: "crop is required"})
		return req, false
	}
	return req, true
}

// fail maps engine errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var unknown *rotation.UnknownCropError
	var fieldErr *engine.FieldError

	switch {
	case errors.As(err, &unknown):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: unknown.Code(), Message: unknown.Error()})
	case errors.As(err, &fieldErr) && fieldErr.Code == engine.ErrCodeFieldNotFound:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Code: string(fieldErr.Code), Message: fieldErr.Error()})
	case errors.Is(err, ir.ErrCheckpointStale):
		s.writeJSON(w, http.StatusConflict, errorResponse{Code: ErrCodeStale, Message: err.Error()})
	case errors.As(err, &fieldErr):
		s.Logger.Error("field unusable", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Code: string(fieldErr.Code), Message: fieldErr.Error()})
	default:
		s.Logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Code: ErrCodeInternal, Message: err.Error()})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("response encode failed", "error", err)
	}
}
