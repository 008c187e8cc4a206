package lattice

import (
	"fmt"
	"math"
)

// Same is the relative-position key for two reptons on the same site.
const Same = "same"

// Metric selects how move compatibility is compared to the link length.
type Metric int

const (
	// MetricSquared compares the squared distance between two moves to the
	// squared link length.
	MetricSquared Metric = iota
	// MetricLegacy compares the squared distance to the unsquared link
	// length. Kept for reproducing older result files.
	MetricLegacy
)

// ParseMetric resolves a configured metric name.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "", "squared":
		return MetricSquared, nil
	case "legacy":
		return MetricLegacy, nil
	default:
		return 0, fmt.Errorf("unsupported reachability metric: %s", name)
	}
}

func (m Metric) String() string {
	if m == MetricLegacy {
		return "legacy"
	}
	return "squared"
}

// Set is the translation set of one topology under one link length: the
// moves, their rates, which moves can follow which, and the ladder table for
// pulled neighbours. A Set is immutable after NewSet and safe to share
// between goroutines.
type Set struct {
	topology   Topology
	linkLength float64
	metric     Metric
	rateModel  RateModel

	index     map[string]int
	rates     RateTable
	reachable map[string][]string
	relative  []Move // moves plus the Same sentinel
	ladder    map[string]map[string][]string
	holds     map[string]map[string]bool
}

// Option configures NewSet.
type Option func(*Set)

// WithMetric sets the reachability metric.
func WithMetric(m Metric) Option {
	return func(s *Set) { s.metric = m }
}

// WithRates sets the rate model (uniform by default).
func WithRates(m RateModel) Option {
	return func(s *Set) { s.rateModel = m }
}

// NewSet builds the translation set and computes the reachability table and
// the ladder eagerly.
func NewSet(topo Topology, linkLength float64, opts ...Option) (*Set, error) {
	if linkLength <= 0 || math.IsNaN(linkLength) || math.IsInf(linkLength, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLinkLength, linkLength)
	}
	if err := topo.validate(); err != nil {
		return nil, err
	}

	s := &Set{
		topology:   topo,
		linkLength: linkLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	rates, err := s.rateModel.Table(topo)
	if err != nil {
		return nil, err
	}
	for _, mv := range topo.Moves {
		if rates[mv.Name] == nil {
			return nil, fmt.Errorf("rate model %s has no rate for move %q", s.rateModel.Key(), mv.Name)
		}
	}
	s.rates = rates

	s.index = make(map[string]int, len(topo.Moves))
	for i, mv := range topo.Moves {
		s.index[mv.Name] = i
	}

	s.buildReachable()
	s.buildLadder()
	return s, nil
}

func (s *Set) buildReachable() {
	threshold := s.linkLength * s.linkLength
	if s.metric == MetricLegacy {
		threshold = s.linkLength
	}

	s.reachable = make(map[string][]string, len(s.topology.Moves))
	for _, from := range s.topology.Moves {
		compatible := make([]string, 0, len(s.topology.Moves))
		for _, to := range s.topology.Moves {
			if SquaredDistance(from.Displacement, to.Displacement) <= threshold {
				compatible = append(compatible, to.Name)
			}
		}
		s.reachable[from.Name] = compatible
	}
}

// buildLadder fills ladder[dr][initDr] with the pulled moves that keep a
// pulled repton within the link length of its puller. initDr is the old
// position of the puller relative to the pulled repton; after the puller
// moves by dr the bond becomes initDr+dr, and a pulled move p leaves the
// bond at initDr+dr-p. holds[dr][initDr] records whether the bond stays
// within the link length when the other repton does not move at all.
func (s *Set) buildLadder() {
	s.relative = make([]Move, 0, len(s.topology.Moves)+1)
	s.relative = append(s.relative, s.topology.Moves...)
	s.relative = append(s.relative, Move{Name: Same, Displacement: NewVector(s.topology.Dimension())})

	limit := s.linkLength * s.linkLength
	s.ladder = make(map[string]map[string][]string, len(s.topology.Moves))
	s.holds = make(map[string]map[string]bool, len(s.topology.Moves))
	for _, dr := range s.topology.Moves {
		rungs := make(map[string][]string, len(s.relative))
		holds := make(map[string]bool, len(s.relative))
		for _, init := range s.relative {
			target := init.Displacement.Add(dr.Displacement)
			holds[init.Name] = target.SquaredNorm() <= limit
			allowed := make([]string, 0, len(s.topology.Moves))
			for _, pulled := range s.topology.Moves {
				if SquaredDistance(pulled.Displacement, target) <= limit {
					allowed = append(allowed, pulled.Name)
				}
			}
			rungs[init.Name] = allowed
		}
		s.ladder[dr.Name] = rungs
		s.holds[dr.Name] = holds
	}
}

// Topology returns the topology the set was built for.
func (s *Set) Topology() Topology { return s.topology }

// LinkLength returns the maximum allowed separation of chain neighbours.
func (s *Set) LinkLength() float64 { return s.linkLength }

// Metric returns the reachability metric in use.
func (s *Set) Metric() Metric { return s.metric }

// RateModel returns the rate model the rate table was built from.
func (s *Set) RateModel() RateModel { return s.rateModel }

// Dimension returns the spatial dimension of the displacement vectors.
func (s *Set) Dimension() int { return s.topology.Dimension() }

// Names returns move names in enumeration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.topology.Moves))
	for i, mv := range s.topology.Moves {
		names[i] = mv.Name
	}
	return names
}

// AllTranslations returns a copy of the name → displacement mapping.
func (s *Set) AllTranslations() map[string]Vector {
	out := make(map[string]Vector, len(s.topology.Moves))
	for _, mv := range s.topology.Moves {
		out[mv.Name] = mv.Displacement.Clone()
	}
	return out
}

// Displacement returns the displacement of the named move.
func (s *Set) Displacement(name string) (Vector, error) {
	mv, err := s.move(name)
	if err != nil {
		return nil, err
	}
	return mv.Displacement.Clone(), nil
}

func (s *Set) move(name string) (Move, error) {
	i, ok := s.index[name]
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrUnknownMove, name)
	}
	return s.topology.Moves[i], nil
}

// Rate returns the propensity of the named move for a repton at from.
// A nil from is read as the origin.
func (s *Set) Rate(name string, from Vector) (float64, error) {
	mv, err := s.move(name)
	if err != nil {
		return 0, err
	}
	if from == nil {
		from = NewVector(s.Dimension())
	}
	r := s.rates[name](from, mv)
	if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: move %q rate %v", ErrInvalidRate, name, r)
	}
	return r, nil
}

// TotalRate sums the rates of every move for a repton at from.
func (s *Set) TotalRate(from Vector) (float64, error) {
	total := 0.0
	for _, mv := range s.topology.Moves {
		r, err := s.Rate(mv.Name, from)
		if err != nil {
			return 0, err
		}
		total += r
	}
	return total, nil
}

// ReachableFrom returns the moves compatible with antecedent, in enumeration
// order. A move is always compatible with itself.
func (s *Set) ReachableFrom(antecedent string) ([]string, error) {
	names, ok := s.reachable[antecedent]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMove, antecedent)
	}
	return append([]string(nil), names...), nil
}

// Ladder returns the pulled moves allowed when a puller that sat at initDr
// relative to the pulled repton moves by dr. initDr is a move name or Same.
func (s *Set) Ladder(dr, initDr string) ([]string, error) {
	rungs, ok := s.ladder[dr]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMove, dr)
	}
	allowed, ok := rungs[initDr]
	if !ok {
		return nil, fmt.Errorf("%w: relative position %q", ErrUnknownMove, initDr)
	}
	return append([]string(nil), allowed...), nil
}

// Holds reports whether a bond whose moving end sat at initDr relative to
// the fixed end stays within the link length after a move by dr.
func (s *Set) Holds(dr, initDr string) (bool, error) {
	row, ok := s.holds[dr]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownMove, dr)
	}
	held, known := row[initDr]
	if !known {
		return false, fmt.Errorf("%w: relative position %q", ErrUnknownMove, initDr)
	}
	return held, nil
}

// RelativeKey maps a relative position onto a move name or Same.
func (s *Set) RelativeKey(v Vector) (string, bool) {
	for _, rel := range s.relative {
		if rel.Displacement.Equal(v) {
			return rel.Name, true
		}
	}
	return "", false
}

// CheckChainable reports whether chains can be built and kept valid with
// this set: every move must fit inside the link length, and every lattice
// bond the link length admits must be a move or Same, so the ladder has an
// entry for it.
func (s *Set) CheckChainable() error {
	limit := s.linkLength * s.linkLength
	for _, mv := range s.topology.Moves {
		if mv.Displacement.SquaredNorm() > limit {
			return fmt.Errorf("move %q is longer than link length %g", mv.Name, s.linkLength)
		}
	}

	dim := s.Dimension()
	reach := int(math.Floor(s.linkLength))
	bond := NewVector(dim)
	var walk func(axis int) error
	walk = func(axis int) error {
		if axis == dim {
			if bond.SquaredNorm() > limit {
				return nil
			}
			if _, ok := s.RelativeKey(bond); !ok {
				return fmt.Errorf("bond %s fits link length %g but is not a move", bond, s.linkLength)
			}
			return nil
		}
		for x := -reach; x <= reach; x++ {
			bond[axis] = float64(x)
			if err := walk(axis + 1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(0)
}
