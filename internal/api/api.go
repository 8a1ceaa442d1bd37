// Package api provides the HTTP API for de-identifying and re-identifying
// text and for inspecting the running service.
//
// Endpoints:
//
//	GET    /status      - health, uptime, detector and entity types
//	GET    /metrics     - counters and latency snapshot
//	POST   /deidentify  - {"content":...} -> {"runId","content","mappings"}
//	POST   /reidentify  - {"content":..., "mappings":{...}} or {"content":..., "runId":...}
//	GET    /maps        - stored runs, without their mappings
//	GET    /maps/{id}   - one stored run
//	DELETE /maps/{id}   - forget a stored run
package api

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"document-deidentifier/internal/config"
	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/mapstore"
	"document-deidentifier/internal/metrics"
)

// Server is the API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	engine    *deid.Engine
	store     mapstore.Store
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
	log       *logger.Logger
}

// New creates an API server.
func New(cfg *config.Config, engine *deid.Engine, store mapstore.Store, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		engine:    engine,
		store:     store,
		token:     cfg.APIToken,
		metrics:   m,
		log:       log,
	}
	if s.token != "" {
		log.Info("init", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /deidentify", s.handleDeidentify)
	mux.HandleFunc("POST /reidentify", s.handleReidentify)
	mux.HandleFunc("GET /maps", s.handleListMaps)
	mux.HandleFunc("GET /maps/{id}", s.handleGetMap)
	mux.HandleFunc("DELETE /maps/{id}", s.handleDeleteMap)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status   string   `json:"status"`
		Uptime   string   `json:"uptime"`
		Detector string   `json:"detector"`
		Entities []string `json:"entities"`
		MapStore string   `json:"mapStore"`
	}
	store := "memory"
	if s.cfg.MapStorePath != "" {
		store = s.cfg.MapStorePath
	}
	writeJSON(w, s.log, http.StatusOK, response{
		Status:   "running",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Detector: s.cfg.Detector,
		Entities: s.engine.Entities(),
		MapStore: store,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.log, http.StatusOK, s.metrics.Snapshot())
}

type deidentifyRequest struct {
	Content deid.Value `json:"content"`
	Source  string     `json:"source,omitempty"`
}

type deidentifyResponse struct {
	RunID    string              `json:"runId,omitempty"`
	Content  deid.Value          `json:"content"`
	Mappings deid.ReplacementMap `json:"mappings"`
}

func (s *Server) handleDeidentify(w http.ResponseWriter, r *http.Request) {
	var req deidentifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, m, err := s.engine.Deidentify(r.Context(), req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, deid.ErrDetectorFailure) {
			status = http.StatusBadGateway
		}
		http.Error(w, err.Error(), status)
		return
	}
	resp := deidentifyResponse{Content: out, Mappings: m}
	if s.store != nil {
		rec, err := s.store.Save(req.Source, m)
		if err != nil {
			s.log.Errorf("store", "save map: %v", err)
			http.Error(w, "failed to store replacement map", http.StatusInternalServerError)
			return
		}
		resp.RunID = rec.ID
	}
	writeJSON(w, s.log, http.StatusOK, resp)
}

type reidentifyRequest struct {
	Content  deid.Value          `json:"content"`
	Mappings deid.ReplacementMap `json:"mappings,omitempty"`
	RunID    string              `json:"runId,omitempty"`
}

func (s *Server) handleReidentify(w http.ResponseWriter, r *http.Request) {
	var req reidentifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	m := req.Mappings
	if m == nil && req.RunID != "" {
		rec, ok := s.lookup(w, req.RunID)
		if !ok {
			return
		}
		m = rec.Mappings
	}
	out, err := s.engine.Reidentify(req.Content, m)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, deid.ErrMissingReplacementMap) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]deid.Value{"content": out})
}

func (s *Server) handleListMaps(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		http.Error(w, "map store not enabled", http.StatusServiceUnavailable)
		return
	}
	recs, err := s.store.List()
	if err != nil {
		s.log.Errorf("store", "list maps: %v", err)
		http.Error(w, "failed to list replacement maps", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.log, http.StatusOK, recs)
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, s.log, http.StatusOK, rec)
}

func (s *Server) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "map store not enabled", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		s.log.Errorf("store", "delete map %s: %v", id, err)
		http.Error(w, "failed to delete replacement map", http.StatusInternalServerError)
		return
	}
	s.log.Infof("store", "deleted map %s", id)
	writeJSON(w, s.log, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) lookup(w http.ResponseWriter, id string) (mapstore.Record, bool) {
	if s.store == nil {
		http.Error(w, "map store not enabled", http.StatusServiceUnavailable)
		return mapstore.Record{}, false
	}
	rec, err := s.store.Get(id)
	switch {
	case errors.Is(err, mapstore.ErrNotFound):
		http.Error(w, "replacement map not found", http.StatusNotFound)
		return mapstore.Record{}, false
	case err != nil:
		s.log.Errorf("store", "get map %s: %v", id, err)
		http.Error(w, "failed to read replacement map", http.StatusInternalServerError)
		return mapstore.Record{}, false
	}
	return rec, true
}

// decode reads a size-capped JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Errorf("encode", "JSON encode error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes()) //nolint:errcheck // client gone
}

// ListenAndServe starts the API HTTP server.
func (s *Server) ListenAndServe() error {
	return s.HTTPServer().ListenAndServe()
}

// HTTPServer returns a configured *http.Server so callers can shut it down.
func (s *Server) HTTPServer() *http.Server {
	addr := s.cfg.Addr()
	s.log.Infof("listen", "listening on %s", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
