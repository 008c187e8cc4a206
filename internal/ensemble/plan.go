// Package ensemble runs independent repeats of one parameter set and
// reduces them into ensemble statistics once every repeat has finished.
package ensemble

import (
	"fmt"
	"time"

	"github.com/talgya/reptation/internal/chain"
	"github.com/talgya/reptation/internal/lattice"
	"github.com/talgya/reptation/internal/sampler"
)

// Plan is one parameter set and how many times to repeat it.
type Plan struct {
	ID          string
	Topology    lattice.Topology
	LinkLength  float64
	Metric      lattice.Metric
	Rates       lattice.RateModel
	Reptons     int
	Epsilon     float64
	Steps       int
	Repeats     int
	Seed        int64
	Init        chain.InitPolicy
	UseHistory  bool
	Observables []string
	WallClock   time.Duration // per-run cutoff, 0 = none
	LogEvery    int
}

// Validate checks the plan before any run starts.
func (p Plan) Validate() error {
	if p.Reptons < 1 {
		return fmt.Errorf("reptons must be at least 1, got %d", p.Reptons)
	}
	if p.Steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", p.Steps)
	}
	if p.Repeats < 1 {
		return fmt.Errorf("repeats must be at least 1, got %d", p.Repeats)
	}
	if p.LinkLength <= 0 {
		return fmt.Errorf("link length must be positive, got %v", p.LinkLength)
	}
	if len(p.Topology.Moves) == 0 {
		return fmt.Errorf("topology is required")
	}
	seen := make(map[string]bool, len(p.Observables))
	for _, name := range p.Observables {
		if seen[name] {
			return fmt.Errorf("observable %s listed twice", name)
		}
		seen[name] = true
		if _, err := sampler.Lookup(name); err != nil {
			return err
		}
	}
	return nil
}

// Params returns the run parameters attached to every snapshot.
func (p Plan) Params() sampler.Params {
	return sampler.Params{
		sampler.ParamEpsilon:   p.Epsilon,
		sampler.ParamParticles: p.Reptons,
		sampler.ParamReptons:   p.Reptons,
	}
}

// RunSeed derives the seed of repeat i.
func (p Plan) RunSeed(i int) int64 {
	return p.Seed + int64(i)
}
