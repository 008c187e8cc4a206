package engine

import (
	"github.com/talgya/reptation/internal/lattice"
	"github.com/talgya/reptation/internal/sampler"
)

// Snapshot is the configuration view handed to samplers: the run
// parameters plus the chain's centre of mass at one instant.
type Snapshot struct {
	params    sampler.Params
	com       lattice.Vector
	particles int
}

func (s Snapshot) Params() sampler.Params { return s.params }
func (s Snapshot) CenterOfMass() lattice.Vector { return s.com }
func (s Snapshot) Particles() int { return s.particles }

func (e *Engine) snapshot() Snapshot {
	return Snapshot{
		params:    e.Params,
		com:       e.Chain.CenterOfMass(),
		particles: e.Chain.Len(),
	}
}
