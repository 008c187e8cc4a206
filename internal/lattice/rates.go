package lattice

import (
	"fmt"
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// RateFunc returns the propensity of move for a repton currently at from.
type RateFunc func(from Vector, move Move) float64

// RateTable maps move name to its rate function.
type RateTable map[string]RateFunc

// Rate model kinds.
const (
	RatesUniform    = "uniform"
	RatesField      = "field"
	RatesDisordered = "disordered"
)

// RateModel describes how a rate table is built for a topology. It is plain
// data so it can be loaded from configuration and used as a cache key.
type RateModel struct {
	Kind     string  `yaml:"kind" json:"kind"`
	Epsilon  float64 `yaml:"epsilon" json:"epsilon"`   // driving field strength
	Axis     int     `yaml:"axis" json:"axis"`         // field direction
	Seed     int64   `yaml:"seed" json:"seed"`         // disorder landscape seed
	Strength float64 `yaml:"strength" json:"strength"` // disorder amplitude
	Scale    float64 `yaml:"scale" json:"scale"`       // disorder spatial frequency
}

// Key identifies the rate model in caches.
func (m RateModel) Key() string {
	kind := m.Kind
	if kind == "" {
		kind = RatesUniform
	}
	switch kind {
	case RatesUniform:
		return kind
	case RatesField:
		return fmt.Sprintf("%s/%g/%d", kind, m.Epsilon, m.Axis)
	default:
		return fmt.Sprintf("%s/%g/%d/%d/%g/%g", kind, m.Epsilon, m.Axis, m.Seed, m.Strength, m.Scale)
	}
}

// Table builds the rate table of the model for topology t.
func (m RateModel) Table(t Topology) (RateTable, error) {
	switch m.Kind {
	case "", RatesUniform:
		return UniformRates(t), nil
	case RatesField:
		return FieldRates(t, m.Epsilon, m.Axis)
	case RatesDisordered:
		return DisorderedRates(t, m.Epsilon, m.Axis, m.Seed, m.Strength, m.Scale)
	default:
		return nil, fmt.Errorf("unsupported rate model: %s", m.Kind)
	}
}

// UniformRates gives every move the same rate 1/M.
func UniformRates(t Topology) RateTable {
	base := 1.0 / float64(len(t.Moves))
	table := make(RateTable, len(t.Moves))
	for _, mv := range t.Moves {
		table[mv.Name] = func(Vector, Move) float64 { return base }
	}
	return table
}

// FieldRates biases moves along axis by exp(±epsilon/2), the usual
// Rubinstein-Duke driving field. Moves perpendicular to the axis keep the
// base rate.
func FieldRates(t Topology, epsilon float64, axis int) (RateTable, error) {
	if axis < 0 || axis >= t.Dimension() {
		return nil, fmt.Errorf("field axis %d out of range for %d dimensions", axis, t.Dimension())
	}
	if math.IsNaN(epsilon) || math.IsInf(epsilon, 0) {
		return nil, fmt.Errorf("field strength must be finite, got %v", epsilon)
	}
	base := 1.0 / float64(len(t.Moves))
	table := make(RateTable, len(t.Moves))
	for _, mv := range t.Moves {
		rate := base * math.Exp(mv.Displacement[axis]*epsilon/2)
		table[mv.Name] = func(Vector, Move) float64 { return rate }
	}
	return table, nil
}

// DisorderedRates applies a quenched random landscape on top of FieldRates:
// each rate is scaled by exp(-strength * n), where n in [0, 1) is OpenSimplex
// noise sampled at the landing site.
func DisorderedRates(t Topology, epsilon float64, axis int, seed int64, strength, scale float64) (RateTable, error) {
	dim := t.Dimension()
	if dim < 2 || dim > 4 {
		return nil, fmt.Errorf("disordered rates support 2 to 4 dimensions, got %d", dim)
	}
	if strength < 0 || math.IsNaN(strength) || math.IsInf(strength, 0) {
		return nil, fmt.Errorf("disorder strength must be finite and non-negative, got %v", strength)
	}
	if scale <= 0 {
		scale = 0.1
	}
	field, err := FieldRates(t, epsilon, axis)
	if err != nil {
		return nil, err
	}

	noise := opensimplex.NewNormalized(seed)
	sample := func(p Vector) float64 {
		switch len(p) {
		case 2:
			return noise.Eval2(p[0]*scale, p[1]*scale)
		case 3:
			return noise.Eval3(p[0]*scale, p[1]*scale, p[2]*scale)
		default:
			return noise.Eval4(p[0]*scale, p[1]*scale, p[2]*scale, p[3]*scale)
		}
	}

	table := make(RateTable, len(t.Moves))
	for _, mv := range t.Moves {
		base := field[mv.Name]
		table[mv.Name] = func(from Vector, move Move) float64 {
			landing := from.Add(move.Displacement)
			return base(from, move) * math.Exp(-strength*sample(landing))
		}
	}
	return table, nil
}
