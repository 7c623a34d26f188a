package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liamcoop/rulespec/expr"
	"github.com/liamcoop/rulespec/history"
	"github.com/liamcoop/rulespec/internal/logger"
	"github.com/liamcoop/rulespec/rules"
	"github.com/liamcoop/rulespec/ruleset"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

type Server struct {
	db             *sql.DB
	manager        *ruleset.Manager
	samples        history.Store
	requestTimeout time.Duration
	now            func() time.Time
	router         *chi.Mux
}

// NewServer wires handlers over an already loaded manager. db may be nil
// when no database is configured.
func NewServer(manager *ruleset.Manager, samples history.Store, db *sql.DB, requestTimeout time.Duration) *Server {
	s := &Server{
		db:             db,
		manager:        manager,
		samples:        samples,
		requestTimeout: requestTimeout,
		now:            time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/tenants", s.handleListTenants)
		r.Route("/tenants/{tenantId}/rulesets", func(r chi.Router) {
			r.Post("/", s.handleCreateRuleSet)
			r.Get("/", s.handleListRuleSets)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetRuleSet)
				r.Delete("/", s.handleDeleteRuleSet)
				r.Post("/decide", s.handleDecide)
				r.Get("/distribution", s.handleDistribution)
				r.Post("/distribution", s.handleDistribution)
			})
		})

		r.Post("/samples/{key}", s.handleRecordSample)
		r.Get("/samples/{key}", s.handleGetSeries)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request through the service logger and counts
// error responses
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.RecordHTTPStatus(status)
		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		TenantsLoaded: len(s.manager.Tenants()),
		Counters:      logger.Snapshot(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, TenantsListResponse{Tenants: s.manager.Tenants()})
}

func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	def, err := ruleset.ParseDefinition(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid definition", err)
		return
	}

	rs, err := s.manager.Put(r.Context(), tenantID, def)
	if err != nil {
		respondManagerError(w, "failed to create rule set", err)
		return
	}

	respondJSON(w, http.StatusCreated, rs.Definition())
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	defs, err := s.manager.List(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondManagerError(w, "tenant not found", err)
		return
	}
	respondJSON(w, http.StatusOK, RuleSetsListResponse{RuleSets: defs})
}

func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := s.manager.Get(chi.URLParam(r, "tenantId"), chi.URLParam(r, "name"))
	if err != nil {
		respondManagerError(w, "rule set not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rs.Definition())
}

func (s *Server) handleDeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Delete(r.Context(), chi.URLParam(r, "tenantId"), chi.URLParam(r, "name"))
	if err != nil {
		respondManagerError(w, "failed to delete rule set", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeFacts(r *http.Request, w http.ResponseWriter) (expr.Facts, error) {
	var facts expr.Facts
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&facts); err != nil {
		return nil, err
	}
	return normalizeNumbers(facts).(expr.Facts), nil
}

// normalizeNumbers turns json.Number into int64 when integral, float64
// otherwise, so CEL sees ints and doubles as written
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	name := chi.URLParam(r, "name")

	facts, err := decodeFacts(r, w)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid facts", err)
		return
	}

	d, err := s.manager.Decide(tenantID, name, facts)
	if err != nil {
		respondManagerError(w, "rule set not found", err)
		return
	}

	resp := DecideResponse{
		DecisionID: uuid.NewString(),
		Matched:    d.Matched,
		Result:     d.Result,
		Index:      d.Index,
	}
	logger.Debug("decision", "tenant", tenantID, "ruleSet", name, "decisionId", resp.DecisionID, "matched", d.Matched, "index", d.Index)
	respondJSON(w, http.StatusOK, resp)
}

// handleDistribution serves the static distribution on GET and the
// distribution over eligible rules for the posted facts on POST
func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	rs, err := s.manager.Get(chi.URLParam(r, "tenantId"), chi.URLParam(r, "name"))
	if err != nil {
		respondManagerError(w, "rule set not found", err)
		return
	}

	var dist []rules.Probability[any]
	if r.Method == http.MethodPost {
		facts, ferr := decodeFacts(r, w)
		if ferr != nil {
			respondError(w, http.StatusBadRequest, "invalid facts", ferr)
			return
		}
		dist, err = rs.EligibleDistribution(facts)
	} else {
		dist, err = rs.Distribution()
	}
	if err != nil {
		respondManagerError(w, "distribution unavailable", err)
		return
	}

	resp := DistributionResponse{Distribution: make([]ProbabilityResponse, len(dist))}
	for i, p := range dist {
		resp.Distribution[i] = ProbabilityResponse{Result: p.Result, Probability: p.Probability}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordSample(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req RecordSampleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Value == nil {
		respondError(w, http.StatusBadRequest, "value is required", nil)
		return
	}

	sample := history.Sample{Time: s.now().UTC(), Value: *req.Value}
	if req.Time != nil {
		sample.Time = req.Time.UTC()
	}

	if err := s.samples.Record(r.Context(), key, sample); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record sample", err)
		return
	}
	respondJSON(w, http.StatusCreated, SampleResponse{Time: sample.Time, Value: sample.Value})
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	window, err := rules.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	samples, err := s.samples.Series(r.Context(), key, window, s.now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read samples", err)
		return
	}

	resp := SeriesResponse{Key: key, Window: window.String(), Samples: make([]SampleResponse, len(samples))}
	for i, sm := range samples {
		resp.Samples[i] = SampleResponse{Time: sm.Time, Value: sm.Value}
	}
	respondJSON(w, http.StatusOK, resp)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

// respondManagerError maps ruleset errors to HTTP statuses
func respondManagerError(w http.ResponseWriter, message string, err error) {
	var verr *ruleset.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, ruleset.ErrNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ruleset.ErrAlreadyExists):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, ruleset.ErrNotWeighted):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}
