package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reptation/internal/persistence"
	"github.com/talgya/reptation/internal/sampler"
)

type fakeStore struct {
	rows []persistence.EnsembleRow
	aggs map[string][]sampler.Aggregate
	meta map[string]string
	fail bool
}

func (f *fakeStore) RecentEnsembles(_ context.Context, limit int) ([]persistence.EnsembleRow, error) {
	if f.fail {
		return nil, errors.New("disk on fire")
	}
	if limit > len(f.rows) {
		limit = len(f.rows)
	}
	return f.rows[:limit], nil
}

func (f *fakeStore) Ensemble(_ context.Context, id string) (persistence.EnsembleRow, bool, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return r, true, nil
		}
	}
	return persistence.EnsembleRow{}, false, nil
}

func (f *fakeStore) Aggregates(_ context.Context, id string) ([]sampler.Aggregate, error) {
	return f.aggs[id], nil
}

func (f *fakeStore) Series(_ context.Context, kind string, particles int) ([]sampler.Aggregate, error) {
	var out []sampler.Aggregate
	for _, id := range []string{"a", "b"} {
		for _, a := range f.aggs[id] {
			if a.Kind == kind && a.Particles == particles {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetMeta(key string) (string, error) {
	v, ok := f.meta[key]
	if !ok {
		return "", errors.New("no rows")
	}
	return v, nil
}

func newTestServer() (*Server, *fakeStore) {
	store := &fakeStore{
		rows: []persistence.EnsembleRow{
			{ID: "b", Topology: "square", Reptons: 5, Epsilon: 0.2},
			{ID: "a", Topology: "square", Reptons: 5, Epsilon: 0.1},
		},
		aggs: map[string][]sampler.Aggregate{
			"a": {{Kind: sampler.KindDiffusion, Particles: 5, Epsilon: 0.1, Mean: 0.3, StdErr: 0.01, Runs: 4}},
			"b": {{Kind: sampler.KindDiffusion, Particles: 5, Epsilon: 0.2, Mean: 0.25, StdErr: 0.02, Runs: 4}},
		},
		meta: map[string]string{MetaLastSweep: "2026-01-01T00:00:00Z"},
	}
	return &Server{DB: store}, store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer()
	rec := get(t, s.Handler(), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2026-01-01T00:00:00Z", body["last_sweep"])
	assert.Contains(t, body["observables"], sampler.KindDiffusion)
}

func TestEnsembles(t *testing.T) {
	s, store := newTestServer()
	h := s.Handler()

	rec := get(t, h, "/api/v1/ensembles?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []persistence.EnsembleRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ID)

	store.fail = true
	rec = get(t, h, "/api/v1/ensembles")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEnsembleDetail(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	rec := get(t, h, "/api/v1/ensemble/a")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Ensemble   persistence.EnsembleRow `json:"ensemble"`
		Aggregates []sampler.Aggregate     `json:"aggregates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0.1, body.Ensemble.Epsilon)
	require.Len(t, body.Aggregates, 1)
	assert.Equal(t, 0.3, body.Aggregates[0].Mean)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/ensemble/zzz").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/ensemble/").Code)
}

func TestSeries(t *testing.T) {
	s, _ := newTestServer()
	h := s.Handler()

	rec := get(t, h, "/api/v1/series?kind=diffusion&particles=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var aggs []sampler.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &aggs))
	assert.Len(t, aggs, 2)

	rec = get(t, h, "/api/v1/series?kind=diffusion&particles=9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/series?kind=nope&particles=5").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/series?kind=diffusion").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ensembles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://plots.example.org")
	s, _ := newTestServer()
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "https://plots.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://plots.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer()
	s.Limiter = NewRateLimiter(2, time.Minute)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/observables").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/observables").Code)
	rec := get(t, h, "/api/v1/observables")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 61, rl.RetryAfter("10.0.0.1"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))

	now = now.Add(5 * time.Minute)
	rl.Allow("10.0.0.3")
	assert.Len(t, rl.buckets, 1)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestServeStopsOnCancel(t *testing.T) {
	s, _ := newTestServer()
	s.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
