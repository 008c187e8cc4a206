// Package api serves stored ensemble results over HTTP.
// All endpoints are read-only GETs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/reptation/internal/persistence"
	"github.com/talgya/reptation/internal/sampler"
)

// Store is the read side of the result database.
type Store interface {
	RecentEnsembles(ctx context.Context, limit int) ([]persistence.EnsembleRow, error)
	Ensemble(ctx context.Context, id string) (persistence.EnsembleRow, bool, error)
	Aggregates(ctx context.Context, ensembleID string) ([]sampler.Aggregate, error)
	Series(ctx context.Context, kind string, particles int) ([]sampler.Aggregate, error)
	GetMeta(key string) (string, error)
}

// MetaLastSweep is the meta key holding the finish time of the last sweep.
const MetaLastSweep = "last_sweep"

// Server serves ensemble results over HTTP.
type Server struct {
	DB      Store
	Addr    string
	Limiter *RateLimiter // nil = 120 requests per minute per client
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	limiter := s.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(120, time.Minute)
	}
	get := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimitMiddleware(limiter, getOnly(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", get(s.handleStatus))
	mux.HandleFunc("/api/v1/ensembles", get(s.handleEnsembles))
	mux.HandleFunc("/api/v1/ensemble/", get(s.handleEnsembleDetail))
	mux.HandleFunc("/api/v1/series", get(s.handleSeries))
	mux.HandleFunc("/api/v1/observables", get(s.handleObservables))
	return corsMiddleware(mux)
}

// Serve blocks until ctx is done, then shuts the listener down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// corsMiddleware allows localhost dev servers plus the comma-separated
// origins in CORS_ORIGINS.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":        "reptation",
		"observables": sampler.Kinds(),
	}
	if last, err := s.DB.GetMeta(MetaLastSweep); err == nil {
		status["last_sweep"] = last
	}
	writeJSON(w, status)
}

func (s *Server) handleEnsembles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	rows, err := s.DB.RecentEnsembles(r.Context(), limit)
	if err != nil {
		slog.Error("ensemble list query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []persistence.EnsembleRow{}
	}
	writeJSON(w, rows)
}

// handleEnsembleDetail serves GET /api/v1/ensemble/:id.
func (s *Server) handleEnsembleDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/ensemble/"), "/")
	if id == "" {
		http.Error(w, "ensemble id required", http.StatusBadRequest)
		return
	}

	row, ok, err := s.DB.Ensemble(r.Context(), id)
	if err != nil {
		slog.Error("ensemble query failed", "id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "ensemble not found", http.StatusNotFound)
		return
	}
	aggs, err := s.DB.Aggregates(r.Context(), id)
	if err != nil {
		slog.Error("aggregate query failed", "id", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if aggs == nil {
		aggs = []sampler.Aggregate{}
	}
	writeJSON(w, map[string]any{
		"ensemble":   row,
		"aggregates": aggs,
	})
}

// handleSeries serves GET /api/v1/series?kind=diffusion&particles=5.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if _, err := sampler.Lookup(kind); err != nil {
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}
	particles, err := strconv.Atoi(r.URL.Query().Get("particles"))
	if err != nil || particles < 1 {
		http.Error(w, "particles must be a positive integer", http.StatusBadRequest)
		return
	}

	aggs, err := s.DB.Series(r.Context(), kind, particles)
	if err != nil {
		slog.Error("series query failed", "kind", kind, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if aggs == nil {
		aggs = []sampler.Aggregate{}
	}
	writeJSON(w, aggs)
}

func (s *Server) handleObservables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sampler.Kinds())
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
