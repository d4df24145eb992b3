// Package httpserver serves predictions from the model currently deployed in
// the registry slot.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/audit"
	"github.com/ILLUVRSE/training-pipeline/internal/auth"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/estimator"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
)

const maxPredictBytes = 4 << 20

type Options struct {
	Registry registry.Registry
	Slot     models.Slot
	// Events is optional; without it the run history route answers 501.
	Events audit.Store
	// Verifier is optional; without it the model routes are unauthenticated.
	Verifier *auth.Verifier
	Logger   *logrus.Logger
}

type Server struct {
	opts Options

	// loadMu serialises slot fetches. mu guards model and loadedAt.
	loadMu   sync.Mutex
	mu       sync.RWMutex
	model    *estimator.Model
	loadedAt time.Time
}

func New(opts Options) *Server {
	return &Server{opts: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/runs/{runID}/events", s.handleRunEvents)

	r.Group(func(r chi.Router) {
		if s.opts.Verifier != nil {
			r.Use(s.opts.Verifier.Middleware)
		}
		r.Post("/predict", s.handlePredict)
		r.Post("/model/reload", s.handleReload)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	s.mu.RLock()
	loaded := s.model != nil
	s.mu.RUnlock()
	status := map[string]interface{}{
		"ok":          true,
		"time":        time.Now().UTC().Format(time.RFC3339Nano),
		"slot":        s.opts.Slot.String(),
		"modelLoaded": loaded,
	}
	if s.opts.Events != nil {
		if err := s.opts.Events.Ping(ctx); err != nil {
			status["ok"] = false
			status["audit"] = "down"
			status["error"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["audit"] = "up"
	}
	respondJSON(w, http.StatusOK, status)
}

type predictRequest struct {
	Records []map[string]interface{} `json:"records"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(w, r, &req, maxPredictBytes); err != nil {
		respondError(w, http.StatusBadRequest, "PREDICT_BAD_REQUEST", err.Error())
		return
	}
	if len(req.Records) == 0 {
		respondError(w, http.StatusBadRequest, "PREDICT_BAD_REQUEST", "records are required")
		return
	}
	m, err := s.current(r.Context())
	if err != nil {
		s.respondLoadError(w, err)
		return
	}
	preds, err := m.PredictFrame(recordsToFrame(req.Records))
	if err != nil {
		respondError(w, http.StatusBadRequest, "PREDICT_BAD_REQUEST", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": preds,
		"slot":        s.opts.Slot.String(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.model = nil
	s.mu.Unlock()
	if _, err := s.current(r.Context()); err != nil {
		s.respondLoadError(w, err)
		return
	}
	s.mu.RLock()
	loadedAt := s.loadedAt
	s.mu.RUnlock()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"slot":     s.opts.Slot.String(),
		"loadedAt": loadedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Events == nil {
		respondError(w, http.StatusNotImplemented, "AUDIT_UNAVAILABLE", "audit store not configured")
		return
	}
	runID := chi.URLParam(r, "runID")
	events, err := s.opts.Events.ListByRun(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_INTERNAL", err.Error())
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, "AUDIT_NOT_FOUND", "no events for run")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runId":  runID,
		"events": events,
	})
}

func (s *Server) cached() *estimator.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// current returns the cached model, loading it from the slot on first use.
// Concurrent misses share one fetch.
func (s *Server) current(ctx context.Context) (*estimator.Model, error) {
	if m := s.cached(); m != nil {
		return m, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if m := s.cached(); m != nil {
		return m, nil
	}
	m, err := s.opts.Registry.Load(ctx, s.opts.Slot)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.model, s.loadedAt = m, time.Now()
	s.mu.Unlock()
	s.opts.Logger.WithField("slot", s.opts.Slot.String()).Info("loaded deployed model")
	return m, nil
}

func (s *Server) respondLoadError(w http.ResponseWriter, err error) {
	s.opts.Logger.WithField("slot", s.opts.Slot.String()).WithError(err).Error("model load failed")
	switch {
	case errors.Is(err, pipelineerr.ErrDataAccess):
		respondError(w, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", err.Error())
	case errors.Is(err, pipelineerr.ErrModelLoad):
		respondError(w, http.StatusInternalServerError, "MODEL_CORRUPT", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "MODEL_INTERNAL", err.Error())
	}
}

// recordsToFrame lays records out over the sorted union of their keys.
// Absent keys and nulls become empty cells.
func recordsToFrame(records []map[string]interface{}) dataset.Frame {
	seen := map[string]bool{}
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	f := dataset.Frame{Columns: cols, Rows: make([][]string, len(records))}
	for i, rec := range records {
		row := make([]string, len(cols))
		for j, c := range cols {
			switch v := rec[c].(type) {
			case nil:
			case string:
				row[j] = dataset.NormalizeMissing(v)
			case json.Number:
				row[j] = v.String()
			default:
				row[j] = fmt.Sprint(v)
			}
		}
		f.Rows[i] = row
	}
	return f
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
