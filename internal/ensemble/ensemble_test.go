package ensemble

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reptation/internal/lattice"
	"github.com/talgya/reptation/internal/sampler"
)

type memSink struct {
	mu      sync.Mutex
	appends map[string][]string
	files   map[string][]string
}

func newMemSink() *memSink {
	return &memSink{appends: map[string][]string{}, files: map[string][]string{}}
}

func (m *memSink) Append(_ context.Context, file, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends[file] = append(m.appends[file], line)
	return nil
}

func (m *memSink) WriteFile(_ context.Context, file string, lines []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file] = lines
	return nil
}

type memStore struct {
	reports []Report
}

func (m *memStore) SaveReport(_ context.Context, r Report) error {
	m.reports = append(m.reports, r)
	return nil
}

func testPlan() Plan {
	return Plan{
		Topology:    lattice.Square(),
		LinkLength:  1,
		Rates:       lattice.RateModel{Kind: lattice.RatesField, Epsilon: 0.5},
		Reptons:     3,
		Epsilon:     0.5,
		Steps:       400,
		Repeats:     4,
		Seed:        100,
		Observables: []string{sampler.KindDriftVelocity, sampler.KindDiffusion, sampler.KindTrajectory},
	}
}

func TestRunMergesAfterAllRepeats(t *testing.T) {
	sink := newMemSink()
	store := &memStore{}
	r := NewRunner(sink, store)
	r.Workers = 3

	report, err := r.Run(context.Background(), testPlan())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Len(t, report.Runs, 4)
	for _, run := range report.Runs {
		assert.Equal(t, 400, run.Steps)
	}
	require.Len(t, report.Aggregates, 2)
	assert.Equal(t, sampler.KindDriftVelocity, report.Aggregates[0].Kind)
	assert.Equal(t, sampler.KindDiffusion, report.Aggregates[1].Kind)
	for _, a := range report.Aggregates {
		assert.Equal(t, 4, a.Runs)
		assert.Equal(t, 3, a.Particles)
		assert.Equal(t, 0.5, a.Epsilon)
	}
	// D = v / (particles * epsilon)
	assert.InDelta(t, report.Aggregates[0].Mean/1.5, report.Aggregates[1].Mean, 1e-12)

	assert.Len(t, sink.appends[sampler.DriftVelocityFile], 1)
	assert.Len(t, sink.appends[sampler.DiffusionFile], 1)
	assert.Len(t, sink.files, 4)
	for name, lines := range sink.files {
		assert.True(t, strings.HasPrefix(name, "traj_"))
		assert.Len(t, lines, 401)
	}

	require.Len(t, store.reports, 1)
	assert.Equal(t, report.ID, store.reports[0].ID)
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	run := func(workers int) []sampler.Aggregate {
		r := NewRunner(nil, nil)
		r.Workers = workers
		plan := testPlan()
		plan.Observables = []string{sampler.KindDriftVelocity}
		report, err := r.Run(context.Background(), plan)
		require.NoError(t, err)
		return report.Aggregates
	}
	assert.Equal(t, run(1), run(4))
}

func TestRunKeepsGivenID(t *testing.T) {
	plan := testPlan()
	plan.ID = "fixed"
	plan.Observables = nil
	report, err := NewRunner(nil, nil).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "fixed", report.ID)
	assert.Empty(t, report.Aggregates)
}

func TestRunFailsWhenWarmUpNeverEnds(t *testing.T) {
	plan := testPlan()
	plan.Steps = 20 // warm-up is 3³ = 27 steps
	plan.Observables = []string{sampler.KindDiffusion}

	store := &memStore{}
	_, err := NewRunner(newMemSink(), store).Run(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, lattice.ErrDomain)
	assert.ErrorIs(t, err, sampler.ErrZeroElapsedTime)
	assert.Empty(t, store.reports)
}

func TestRunRejectsInvalidPlans(t *testing.T) {
	r := NewRunner(nil, nil)
	ctx := context.Background()

	for name, mutate := range map[string]func(*Plan){
		"reptons":     func(p *Plan) { p.Reptons = 0 },
		"steps":       func(p *Plan) { p.Steps = 0 },
		"repeats":     func(p *Plan) { p.Repeats = 0 },
		"link":        func(p *Plan) { p.LinkLength = 0 },
		"topology":    func(p *Plan) { p.Topology = lattice.Topology{} },
		"observable":  func(p *Plan) { p.Observables = []string{"temperature"} },
		"duplicate":   func(p *Plan) { p.Observables = []string{sampler.KindDiffusion, sampler.KindDiffusion} },
		"unchainable": func(p *Plan) { p.LinkLength = 1.5 },
	} {
		plan := testPlan()
		mutate(&plan)
		_, err := r.Run(ctx, plan)
		assert.Error(t, err, name)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(nil, nil).Run(ctx, testPlan())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanParamsAndSeeds(t *testing.T) {
	plan := testPlan()
	p := plan.Params()
	eps, err := p.Float(sampler.ParamEpsilon)
	require.NoError(t, err)
	assert.Equal(t, 0.5, eps)
	n, err := p.Int(sampler.ParamParticles)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, int64(100), plan.RunSeed(0))
	assert.Equal(t, int64(103), plan.RunSeed(3))
}
