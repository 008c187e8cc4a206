package sampler

import (
	"context"
	"fmt"

	"github.com/talgya/reptation/internal/lattice"
)

const (
	KindDriftVelocity = "drift_velocity"
	KindDiffusion     = "diffusion"

	DriftVelocityFile = "v_drift.dat"
	DiffusionFile     = "diffusion.dat"
)

// displacement accumulates elapsed time and centre-of-mass displacement
// along the first axis once the run is past its warm-up.
type displacement struct {
	Time      float64
	CmsX      float64
	Epsilon   float64
	Particles int
}

func (d *displacement) reset() {
	*d = displacement{}
}

func (d *displacement) sample(step int, dt float64, prev, next Snapshot) error {
	eps, err := prev.Params().Float(ParamEpsilon)
	if err != nil {
		return err
	}
	particles, err := prev.Params().Int(ParamParticles)
	if err != nil {
		return err
	}
	d.Epsilon, d.Particles = eps, particles

	n := prev.Particles()
	if step > n*n*n {
		d.Time += dt
		d.CmsX += next.CenterOfMass()[0] - prev.CenterOfMass()[0]
	}
	return nil
}

// DriftVelocity measures the centre-of-mass drift velocity of one run.
type DriftVelocity struct {
	displacement
}

func (*DriftVelocity) Kind() string { return KindDriftVelocity }

func (s *DriftVelocity) Initialize() { s.reset() }

func (s *DriftVelocity) Sample(step int, dt float64, prev, next Snapshot) error {
	return s.sample(step, dt, prev, next)
}

// Diffusion measures the diffusion coefficient of one run, derived from the
// drift velocity through the Einstein relation.
type Diffusion struct {
	displacement
}

func (*Diffusion) Kind() string { return KindDiffusion }

func (s *Diffusion) Initialize() { s.reset() }

func (s *Diffusion) Sample(step int, dt float64, prev, next Snapshot) error {
	return s.sample(step, dt, prev, next)
}

func accumulators(kind string, results []Sampler) ([]*displacement, error) {
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	out := make([]*displacement, len(results))
	for i, r := range results {
		switch v := r.(type) {
		case *DriftVelocity:
			out[i] = &v.displacement
		case *Diffusion:
			out[i] = &v.displacement
		default:
			return nil, fmt.Errorf("merge %s: run %d has sampler kind %s", kind, i, r.Kind())
		}
		if r.Kind() != kind {
			return nil, fmt.Errorf("merge %s: run %d has sampler kind %s", kind, i, r.Kind())
		}
		if out[i].Time == 0 {
			return nil, &ZeroTimeError{Kind: kind, Run: i}
		}
	}
	return out, nil
}

// MergeDriftVelocity reports mean drift velocity v = Δx/Δt and its standard
// error, appending one record to v_drift.dat.
func MergeDriftVelocity(ctx context.Context, results []Sampler, steps, repeats int, sink Sink) ([]Aggregate, error) {
	runs, err := accumulators(KindDriftVelocity, results)
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(runs))
	for i, r := range runs {
		v[i] = r.CmsX / r.Time
	}
	return emit(ctx, KindDriftVelocity, DriftVelocityFile, runs, v, sink)
}

// MergeDiffusion reports D = v / (particles * epsilon) and its standard
// error, appending one record to diffusion.dat.
func MergeDiffusion(ctx context.Context, results []Sampler, steps, repeats int, sink Sink) ([]Aggregate, error) {
	runs, err := accumulators(KindDiffusion, results)
	if err != nil {
		return nil, err
	}
	d := make([]float64, len(runs))
	for i, r := range runs {
		denom := float64(r.Particles) * r.Epsilon
		if denom == 0 {
			return nil, &lattice.DomainError{Op: "merge " + KindDiffusion, Reason: fmt.Sprintf("run %d has particles*epsilon = 0", i)}
		}
		d[i] = (r.CmsX / r.Time) / denom
	}
	return emit(ctx, KindDiffusion, DiffusionFile, runs, d, sink)
}

func emit(ctx context.Context, kind, file string, runs []*displacement, values []float64, sink Sink) ([]Aggregate, error) {
	mean, stdErr, err := Reduce(values)
	if err != nil {
		return nil, err
	}
	last := runs[len(runs)-1]
	agg := Aggregate{
		Kind:      kind,
		Particles: last.Particles,
		Epsilon:   last.Epsilon,
		Mean:      mean,
		StdErr:    stdErr,
		Runs:      len(runs),
	}
	if sink != nil {
		if err := sink.Append(ctx, file, FormatRecord(agg)); err != nil {
			return nil, fmt.Errorf("write %s: %w", file, err)
		}
	}
	return []Aggregate{agg}, nil
}
