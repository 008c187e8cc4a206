// Package sampler accumulates per-run observables from configuration
// snapshots and reduces completed runs into ensemble statistics.
package sampler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/talgya/reptation/internal/lattice"
)

// Snapshot is the view of one configuration a sampler observes.
type Snapshot interface {
	Params() Params
	CenterOfMass() lattice.Vector
	Particles() int
}

// Sampler accumulates one observable over one run. Samplers are not safe
// for concurrent use; a run owns its samplers.
type Sampler interface {
	Kind() string
	Initialize()
	Sample(step int, dt float64, prev, next Snapshot) error
}

// Sink receives merge output. Implementations must serialize writes.
type Sink interface {
	Append(ctx context.Context, file, line string) error
	WriteFile(ctx context.Context, file string, lines []string) error
}

// Aggregate is the ensemble statistic of one scalar observable.
type Aggregate struct {
	Kind      string  `json:"kind" db:"kind"`
	Particles int     `json:"particles" db:"particles"`
	Epsilon   float64 `json:"epsilon" db:"epsilon"`
	Mean      float64 `json:"mean" db:"mean"`
	StdErr    float64 `json:"std_err" db:"std_err"`
	Runs      int     `json:"runs" db:"runs"`
}

// MergeFunc reduces the completed samplers of one ensemble. results must be
// treated as read-only. Kinds that do not reduce to a scalar return no
// aggregates.
type MergeFunc func(ctx context.Context, results []Sampler, steps, repeats int, sink Sink) ([]Aggregate, error)

// Kind describes one observable: how to make a per-run sampler and how to
// merge an ensemble of them.
type Kind struct {
	Name  string
	New   func() Sampler
	Merge MergeFunc
}

var registry = struct {
	mu sync.RWMutex
	m  map[string]Kind
}{
	m: make(map[string]Kind),
}

func init() {
	MustRegister(Kind{Name: KindDriftVelocity, New: func() Sampler { return &DriftVelocity{} }, Merge: MergeDriftVelocity})
	MustRegister(Kind{Name: KindDiffusion, New: func() Sampler { return &Diffusion{} }, Merge: MergeDiffusion})
	MustRegister(Kind{Name: KindTrajectory, New: func() Sampler { return &Trajectory{} }, Merge: MergeTrajectory})
}

// Register adds an observable kind.
func Register(k Kind) error {
	if k.Name == "" || k.New == nil || k.Merge == nil {
		return fmt.Errorf("sampler kind requires name, constructor and merge")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.m[k.Name]; ok {
		return fmt.Errorf("%w: %s", ErrKindExists, k.Name)
	}
	registry.m[k.Name] = k
	return nil
}

func MustRegister(k Kind) {
	if err := Register(k); err != nil {
		panic(err)
	}
}

// Lookup returns a registered kind.
func Lookup(name string) (Kind, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	k, ok := registry.m[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrKindNotFound, name)
	}
	return k, nil
}

// Kinds lists registered kind names in sorted order.
func Kinds() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.m))
	for name := range registry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reduce returns the mean of values and its standard error, the population
// standard deviation over sqrt(n). It uses ddof=0, numpy's default, not the
// n-1 sample deviation.
func Reduce(values []float64) (mean, stdErr float64, err error) {
	if len(values) == 0 {
		return 0, 0, ErrNoResults
	}
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum/n) / math.Sqrt(n), nil
}

// FormatRecord renders an aggregate as a tab-separated result line.
func FormatRecord(a Aggregate) string {
	return fmt.Sprintf("%d\t%.20f\t%.20f\t%.20f", a.Particles, a.Mean, a.StdErr, a.Epsilon)
}
