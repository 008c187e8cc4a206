// Package engine provides the kinetic Monte Carlo stepping loop that drives
// a repton chain and feeds its samplers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/reptation/internal/chain"
	"github.com/talgya/reptation/internal/lattice"
	"github.com/talgya/reptation/internal/sampler"
)

// Stop reasons reported in Result.
const (
	StopMaxSteps  = "max_steps"
	StopWallClock = "wall_clock"
)

// ctxCheckInterval is how many steps run between context and wall-clock checks.
const ctxCheckInterval = 1024

// Engine drives one run forward, one KMC event per step.
type Engine struct {
	Chain    *chain.Chain
	Params   sampler.Params // attached to every snapshot
	Samplers []sampler.Sampler

	MaxSteps  int           // hard step cutoff
	WallClock time.Duration // 0 = no wall-clock cutoff
	LogEvery  int           // progress log interval in steps, 0 = off
	Logger    *slog.Logger

	Step int     // steps completed
	Time float64 // simulated time elapsed

	// OnStep runs after every accepted step, once samplers have seen it.
	OnStep func(step int, dt float64, u chain.Update)
}

// Result summarizes a finished run.
type Result struct {
	Steps        int            `json:"steps"`
	Time         float64        `json:"time"`
	Displacement lattice.Vector `json:"displacement"` // centre-of-mass displacement
	StopReason   string         `json:"stop_reason"`
	Elapsed      time.Duration  `json:"elapsed"`
}

// NewEngine creates an engine for c with default settings.
func NewEngine(c *chain.Chain, params sampler.Params, samplers ...sampler.Sampler) *Engine {
	return &Engine{
		Chain:    c,
		Params:   params,
		Samplers: samplers,
		Logger:   slog.Default(),
	}
}

// Run initializes the samplers and steps until MaxSteps, the wall-clock
// cutoff, or cancellation of ctx. rng must be owned by this run.
func (e *Engine) Run(ctx context.Context, rng *rand.Rand) (Result, error) {
	if e.Chain == nil {
		return Result{}, fmt.Errorf("engine has no chain")
	}
	if e.MaxSteps <= 0 {
		return Result{}, fmt.Errorf("max steps must be positive, got %d", e.MaxSteps)
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, s := range e.Samplers {
		s.Initialize()
	}

	start := time.Now()
	var deadline time.Time
	if e.WallClock > 0 {
		deadline = start.Add(e.WallClock)
	}
	origin := e.Chain.CenterOfMass()
	rates := make([]float64, e.Chain.Len())

	logger.Debug("kmc run started", "reptons", e.Chain.Len(), "max_steps", humanize.Comma(int64(e.MaxSteps)))

	reason := StopMaxSteps
	for e.Step < e.MaxSteps {
		if e.Step%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return e.result(origin, reason, start), err
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				reason = StopWallClock
				break
			}
		}

		if err := e.step(rng, rates); err != nil {
			return e.result(origin, reason, start), err
		}

		if e.LogEvery > 0 && e.Step%e.LogEvery == 0 {
			com := e.Chain.CenterOfMass()
			logger.Info("kmc progress",
				"step", humanize.Comma(int64(e.Step)),
				"time", fmt.Sprintf("%.3f", e.Time),
				"cms_x", fmt.Sprintf("%.3f", com[0]-origin[0]),
			)
		}
	}

	res := e.result(origin, reason, start)
	logger.Debug("kmc run finished", "steps", humanize.Comma(int64(res.Steps)), "reason", res.StopReason, "elapsed", res.Elapsed)
	return res, nil
}

// step performs one KMC event: pick a repton with probability proportional
// to the total rate of its admissible moves, advance the clock by -ln(u)/R
// and move it.
func (e *Engine) step(rng *rand.Rand, rates []float64) error {
	total := 0.0
	for i := range rates {
		r, err := e.Chain.Rate(i)
		if err != nil {
			return err
		}
		total += r
		rates[i] = total
	}
	if total <= 0 {
		return &lattice.DomainError{Op: "step", Reason: "no repton has an admissible move"}
	}

	draw := rng.Float64() * total
	index := len(rates) - 1
	for i, c := range rates {
		if c >= draw && (i == 0 || c > rates[i-1]) {
			index = i
			break
		}
	}
	dt := -math.Log(1-rng.Float64()) / total

	old := e.snapshot()
	u, err := e.Chain.Move(rng, index)
	if err != nil {
		return fmt.Errorf("step %d: %w", e.Step+1, err)
	}
	cur := e.snapshot()

	step := e.Step + 1
	for _, s := range e.Samplers {
		if err := s.Sample(step, dt, old, cur); err != nil {
			return fmt.Errorf("step %d: sample %s: %w", step, s.Kind(), err)
		}
	}
	e.Step = step
	e.Time += dt

	if e.OnStep != nil {
		e.OnStep(step, dt, u)
	}
	return nil
}

func (e *Engine) result(origin lattice.Vector, reason string, start time.Time) Result {
	return Result{
		Steps:        e.Step,
		Time:         e.Time,
		Displacement: e.Chain.CenterOfMass().Sub(origin),
		StopReason:   reason,
		Elapsed:      time.Since(start),
	}
}
