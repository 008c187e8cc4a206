package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/reptation/internal/chain"
	"github.com/talgya/reptation/internal/engine"
	"github.com/talgya/reptation/internal/lattice"
	"github.com/talgya/reptation/internal/sampler"
)

// Store persists finished ensembles.
type Store interface {
	SaveReport(ctx context.Context, report Report) error
}

// Report is the outcome of one ensemble.
type Report struct {
	ID         string
	Plan       Plan
	Runs       []engine.Result
	Aggregates []sampler.Aggregate
	CreatedAt  time.Time
	Elapsed    time.Duration
}

// Runner executes plans. Sink and Store are optional.
type Runner struct {
	Cache   *lattice.Cache
	Sink    sampler.Sink
	Store   Store
	Workers int // 0 = GOMAXPROCS
	Logger  *slog.Logger
}

// NewRunner creates a runner with its own translation set cache.
func NewRunner(sink sampler.Sink, store Store) *Runner {
	return &Runner{
		Cache:  lattice.NewCache(0),
		Sink:   sink,
		Store:  store,
		Logger: slog.Default(),
	}
}

type runOutput struct {
	result   engine.Result
	samplers []sampler.Sampler
}

// Run executes every repeat of plan on the worker pool, waits for all of
// them, then merges each observable once.
func (r *Runner) Run(ctx context.Context, plan Plan) (Report, error) {
	if err := plan.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid plan: %w", err)
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := r.Cache
	if cache == nil {
		cache = lattice.NewCache(0)
	}

	kinds := make([]sampler.Kind, len(plan.Observables))
	for i, name := range plan.Observables {
		k, err := sampler.Lookup(name)
		if err != nil {
			return Report{}, err
		}
		kinds[i] = k
	}

	set, err := cache.Get(plan.Topology, plan.LinkLength, plan.Metric, plan.Rates)
	if err != nil {
		return Report{}, fmt.Errorf("build translation set: %w", err)
	}

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > plan.Repeats {
		workers = plan.Repeats
	}

	start := time.Now()
	logger.Info("ensemble started",
		"id", plan.ID,
		"topology", plan.Topology.Name,
		"reptons", plan.Reptons,
		"epsilon", plan.Epsilon,
		"repeats", plan.Repeats,
		"workers", workers,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outputs := make([]runOutput, plan.Repeats)
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out, err := runOne(runCtx, plan, set, kinds, i, logger)
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("run %d: %w", i, err)
						cancel()
					})
					continue
				}
				outputs[i] = out
			}
		}()
	}

dispatch:
	for i := 0; i < plan.Repeats; i++ {
		select {
		case jobs <- i:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return Report{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{
		ID:        plan.ID,
		Plan:      plan,
		Runs:      make([]engine.Result, plan.Repeats),
		CreatedAt: start.UTC(),
	}
	for i, out := range outputs {
		report.Runs[i] = out.result
	}

	for k, kind := range kinds {
		results := make([]sampler.Sampler, plan.Repeats)
		for i, out := range outputs {
			results[i] = out.samplers[k]
		}
		aggs, err := kind.Merge(ctx, results, plan.Steps, plan.Repeats, r.Sink)
		if err != nil {
			return Report{}, fmt.Errorf("merge %s: %w", kind.Name, err)
		}
		report.Aggregates = append(report.Aggregates, aggs...)
	}
	report.Elapsed = time.Since(start)

	if r.Store != nil {
		if err := r.Store.SaveReport(ctx, report); err != nil {
			return Report{}, fmt.Errorf("save ensemble %s: %w", plan.ID, err)
		}
	}

	for _, a := range report.Aggregates {
		logger.Info("ensemble aggregate",
			"id", plan.ID,
			"kind", a.Kind,
			"mean", fmt.Sprintf("%.6g", a.Mean),
			"std_err", fmt.Sprintf("%.3g", a.StdErr),
		)
	}
	logger.Info("ensemble finished", "id", plan.ID, "elapsed", report.Elapsed)
	return report, nil
}

func runOne(ctx context.Context, plan Plan, set *lattice.Set, kinds []sampler.Kind, i int, logger *slog.Logger) (runOutput, error) {
	rng := rand.New(rand.NewSource(plan.RunSeed(i)))
	c, err := chain.New(set, plan.Reptons, rng, plan.Init, chain.WithHistory(plan.UseHistory))
	if err != nil {
		return runOutput{}, err
	}

	samplers := make([]sampler.Sampler, len(kinds))
	for k, kind := range kinds {
		samplers[k] = kind.New()
	}

	e := engine.NewEngine(c, plan.Params(), samplers...)
	e.MaxSteps = plan.Steps
	e.WallClock = plan.WallClock
	e.LogEvery = plan.LogEvery
	e.Logger = logger.With("run", i)

	res, err := e.Run(ctx, rng)
	if err != nil {
		return runOutput{}, err
	}
	return runOutput{result: res, samplers: samplers}, nil
}
