package sampler

import (
	"context"
	"fmt"
)

const KindTrajectory = "trajectory"

// Trajectory records the full time series of elapsed time and
// centre-of-mass displacement, starting from (0, 0). There is no warm-up.
type Trajectory struct {
	Times   []float64
	CmsX    []float64
	Epsilon float64
	Reptons int
}

func (*Trajectory) Kind() string { return KindTrajectory }

func (s *Trajectory) Initialize() {
	s.Times = []float64{0}
	s.CmsX = []float64{0}
	s.Epsilon, s.Reptons = 0, 0
}

func (s *Trajectory) Sample(step int, dt float64, prev, next Snapshot) error {
	eps, err := prev.Params().Float(ParamEpsilon)
	if err != nil {
		return err
	}
	reptons, err := prev.Params().Int(ParamReptons)
	if err != nil {
		return err
	}
	s.Epsilon, s.Reptons = eps, reptons

	if len(s.Times) == 0 {
		s.Initialize()
	}
	last := len(s.Times) - 1
	s.Times = append(s.Times, s.Times[last]+dt)
	s.CmsX = append(s.CmsX, s.CmsX[last]+next.CenterOfMass()[0]-prev.CenterOfMass()[0])
	return nil
}

// TrajectoryFile names the output file of run i.
func TrajectoryFile(epsilon float64, reptons, run int) string {
	return fmt.Sprintf("traj_%g_%d_%d.dat", epsilon, reptons, run)
}

// MergeTrajectory writes every run's series to its own file, one
// "time\tcms_x" line per sample. It produces no aggregate.
func MergeTrajectory(ctx context.Context, results []Sampler, steps, repeats int, sink Sink) ([]Aggregate, error) {
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	for i, r := range results {
		tr, ok := r.(*Trajectory)
		if !ok {
			return nil, fmt.Errorf("merge %s: run %d has sampler kind %s", KindTrajectory, i, r.Kind())
		}
		lines := make([]string, len(tr.Times))
		for k := range tr.Times {
			lines[k] = fmt.Sprintf("%.20f\t%.20f", tr.Times[k], tr.CmsX[k])
		}
		if sink == nil {
			continue
		}
		if err := sink.WriteFile(ctx, TrajectoryFile(tr.Epsilon, tr.Reptons, i), lines); err != nil {
			return nil, fmt.Errorf("write trajectory %d: %w", i, err)
		}
	}
	return nil, nil
}
