// Package chain holds the repton chain: an ordered sequence of lattice
// positions whose neighbours stay within the link length of one another.
package chain

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/talgya/reptation/internal/lattice"
)

// InitPolicy selects how the initial chain shape is drawn.
type InitPolicy int

const (
	// InitFreelyJointed draws every bond independently of the previous one.
	InitFreelyJointed InitPolicy = iota
	// InitConditioned draws each bond from the moves reachable from the
	// previous bond.
	InitConditioned
)

// ParseInitPolicy resolves a configured policy name.
func ParseInitPolicy(name string) (InitPolicy, error) {
	switch name {
	case "", "free", "freely-jointed":
		return InitFreelyJointed, nil
	case "conditioned":
		return InitConditioned, nil
	default:
		return 0, fmt.Errorf("unsupported init policy: %s", name)
	}
}

func (p InitPolicy) String() string {
	if p == InitConditioned {
		return "conditioned"
	}
	return "freely-jointed"
}

var ErrInvalidLength = errors.New("chain: repton count must be at least 1")

// Chain is one polymer configuration. It is owned by a single run and must
// not be shared between goroutines.
type Chain struct {
	set        *lattice.Set
	positions  []lattice.Vector
	lastMove   []string // most recent move of each repton, "" if none
	useHistory bool
}

// Option configures New.
type Option func(*Chain)

// WithHistory makes every repton draw its next move from the moves
// reachable from its previous one.
func WithHistory(enabled bool) Option {
	return func(c *Chain) { c.useHistory = enabled }
}

// New builds a chain of the given length. Repton 0 sits at the origin and
// each following repton is placed one drawn move away from its predecessor.
func New(set *lattice.Set, reptons int, rng *rand.Rand, policy InitPolicy, opts ...Option) (*Chain, error) {
	if reptons < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, reptons)
	}
	if err := set.CheckChainable(); err != nil {
		return nil, err
	}

	c := &Chain{
		set:       set,
		positions: make([]lattice.Vector, reptons),
		lastMove:  make([]string, reptons),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.positions[0] = lattice.NewVector(set.Dimension())
	prev := ""
	for i := 1; i < reptons; i++ {
		antecedent := ""
		if policy == InitConditioned {
			antecedent = prev
		}
		name, err := set.Select(rng, antecedent, c.positions[i-1])
		if err != nil {
			return nil, fmt.Errorf("place repton %d: %w", i, err)
		}
		d, err := set.Displacement(name)
		if err != nil {
			return nil, err
		}
		c.positions[i] = c.positions[i-1].Add(d)
		prev = name
	}
	return c, nil
}

// Set returns the translation set the chain moves with.
func (c *Chain) Set() *lattice.Set { return c.set }

// Len returns the number of reptons.
func (c *Chain) Len() int { return len(c.positions) }

// Position returns a copy of repton i's position.
func (c *Chain) Position(i int) lattice.Vector {
	return c.positions[i].Clone()
}

// Positions returns a deep copy of all positions.
func (c *Chain) Positions() []lattice.Vector {
	out := make([]lattice.Vector, len(c.positions))
	for i, p := range c.positions {
		out[i] = p.Clone()
	}
	return out
}

// CenterOfMass returns the mean repton position.
func (c *Chain) CenterOfMass() lattice.Vector {
	com := lattice.NewVector(c.set.Dimension())
	for _, p := range c.positions {
		for k := range p {
			com[k] += p[k]
		}
	}
	n := float64(len(c.positions))
	for k := range com {
		com[k] /= n
	}
	return com
}

// Validate checks that every pair of neighbours is within the link length.
func (c *Chain) Validate() error {
	limit := c.set.LinkLength() * c.set.LinkLength()
	for i := 1; i < len(c.positions); i++ {
		if d := lattice.SquaredDistance(c.positions[i], c.positions[i-1]); d > limit {
			return fmt.Errorf("bond %d-%d has squared length %g, limit %g", i-1, i, d, limit)
		}
	}
	return nil
}
