// Package httpapi serves the agent admin API over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cartridge/qagent/internal/metrics"
	"github.com/cartridge/qagent/internal/middleware"
	"github.com/cartridge/qagent/internal/service"
	"github.com/cartridge/qagent/internal/storage"
	"github.com/cartridge/qagent/internal/types"
)

const (
	maxBody     = 64 * 1024
	maxDataBody = 32 * 1024 * 1024
)

// Server wires HTTP handlers to the agent service.
type Server struct {
	agent   *service.Agent
	metrics *metrics.Collector
	logger  *zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(agent *service.Agent, collector *metrics.Collector, logger *zerolog.Logger) *Server {
	if collector == nil {
		collector = metrics.NewCollector(zerolog.Nop())
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{agent: agent, metrics: collector, logger: logger}
}

// Routes builds the HTTP router for the agent service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(*s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1/agent", func(r chi.Router) {
		r.Get("/", s.handleStats)
		r.Put("/mode", s.handleSetMode)
		r.Patch("/params", s.handleConfigure)
		r.Put("/ranges", s.handleSetRanges)
		r.Get("/data", s.handleExportData)
		r.Put("/data", s.handleLoadData)
		r.Post("/actions", s.handleRequestAction)
		r.Post("/updates", s.handleUpdate)
		r.Post("/labels", s.handleSetAction)
		r.Get("/snapshots", s.handleListSnapshots)
		r.Post("/snapshots", s.handleSaveSnapshot)
		r.Post("/snapshots/latest/restore", s.handleRestoreLatest)
		r.Post("/snapshots/{snapshotID}/restore", s.handleRestoreSnapshot)
	})
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agent.Stats(r.Context()))
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mode types.Mode `json:"mode"`
	}
	if !s.decode(w, r, maxBody, &payload) {
		return
	}
	if err := s.agent.SetMode(r.Context(), payload.Mode); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.agent.Stats(r.Context()))
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var settings types.Settings
	if !s.decode(w, r, maxBody, &settings) {
		return
	}
	if err := s.agent.Configure(r.Context(), settings); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.agent.Stats(r.Context()))
}

func (s *Server) handleSetRanges(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Min []float64 `json:"min"`
		Max []float64 `json:"max"`
	}
	if !s.decode(w, r, maxBody, &payload) {
		return
	}
	if err := s.agent.SetRanges(r.Context(), payload.Min, payload.Max); err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.agent.Stats(r.Context()))
}

func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][][]float64{"data": s.agent.ExportData(r.Context())})
}

func (s *Server) handleLoadData(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Data [][]float64 `json:"data"`
	}
	if !s.decode(w, r, maxDataBody, &payload) {
		return
	}
	if err := s.agent.LoadData(r.Context(), payload.Data); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		State types.State `json:"state"`
	}
	if !s.decode(w, r, maxBody, &payload) {
		return
	}
	action, err := s.agent.RequestAction(r.Context(), payload.State)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]types.Action{"action": action})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload service.UpdateInput
	if !s.decode(w, r, maxBody, &payload) {
		return
	}
	if err := s.agent.UpdateQFactors(r.Context(), payload); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		State  types.State  `json:"state"`
		Action types.Action `json:"action"`
	}
	if !s.decode(w, r, maxBody, &payload) {
		return
	}
	if err := s.agent.SetAction(r.Context(), payload.State, payload.Action); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.agent.ListSnapshots(r.Context(), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 && !s.decode(w, r, maxBody, &payload) {
		return
	}
	record, err := s.agent.SaveSnapshot(r.Context(), payload.Reason)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleRestoreLatest(w http.ResponseWriter, r *http.Request) {
	record, err := s.agent.RestoreLatest(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshotID := chi.URLParam(r, "snapshotID")
	record, err := s.agent.RestoreSnapshot(r.Context(), snapshotID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// decode reads a JSON body into v, writing the error response itself on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		s.writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrMode), errors.Is(err, storage.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrType), errors.Is(err, types.ErrMismatch), errors.Is(err, types.ErrRange):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
			"kind":  string(types.KindOf(err)),
		})
	case errors.Is(err, service.ErrNoStore):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// instrument records an API request metric per routed request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		s.metrics.APIRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}
