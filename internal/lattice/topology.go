package lattice

import "fmt"

// Move is one elementary lattice translation.
type Move struct {
	Name         string `json:"name"`
	Displacement Vector `json:"displacement"`
}

// Topology is an ordered move vocabulary. The order of Moves is the
// enumeration order used by the selector, so it must never change for a
// given variant.
type Topology struct {
	Name  string `json:"name"`
	Moves []Move `json:"moves"`
}

// Square returns the 2D square lattice: one unit move per axis direction.
func Square() Topology {
	return Topology{
		Name: "square",
		Moves: []Move{
			{Name: "up", Displacement: Vector{0, 1}},
			{Name: "right", Displacement: Vector{1, 0}},
			{Name: "down", Displacement: Vector{0, -1}},
			{Name: "left", Displacement: Vector{-1, 0}},
		},
	}
}

// Cubic returns the 3D simple cubic lattice.
func Cubic() Topology {
	return Topology{
		Name: "cubic",
		Moves: []Move{
			{Name: "up", Displacement: Vector{0, 1, 0}},
			{Name: "right", Displacement: Vector{1, 0, 0}},
			{Name: "down", Displacement: Vector{0, -1, 0}},
			{Name: "left", Displacement: Vector{-1, 0, 0}},
			{Name: "front", Displacement: Vector{0, 0, 1}},
			{Name: "back", Displacement: Vector{0, 0, -1}},
		},
	}
}

// TopologyByName resolves a configured topology name.
func TopologyByName(name string) (Topology, error) {
	switch name {
	case "", "square":
		return Square(), nil
	case "cubic":
		return Cubic(), nil
	default:
		return Topology{}, fmt.Errorf("unsupported topology: %s", name)
	}
}

// Dimension returns the spatial dimension shared by all moves.
func (t Topology) Dimension() int {
	if len(t.Moves) == 0 {
		return 0
	}
	return len(t.Moves[0].Displacement)
}

func (t Topology) validate() error {
	if len(t.Moves) == 0 {
		return fmt.Errorf("topology %q has no moves", t.Name)
	}
	dim := t.Dimension()
	if dim == 0 {
		return fmt.Errorf("topology %q has zero-dimensional moves", t.Name)
	}
	seen := make(map[string]bool, len(t.Moves))
	for _, m := range t.Moves {
		if m.Name == "" || m.Name == Same {
			return fmt.Errorf("topology %q: invalid move name %q", t.Name, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("topology %q: duplicate move %q", t.Name, m.Name)
		}
		seen[m.Name] = true
		if len(m.Displacement) != dim {
			return fmt.Errorf("topology %q: move %q has dimension %d, want %d", t.Name, m.Name, len(m.Displacement), dim)
		}
	}
	return nil
}
