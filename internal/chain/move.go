package chain

import (
	"fmt"
	"math/rand"

	"github.com/talgya/reptation/internal/lattice"
)

// Update describes one accepted reptation step. Only Repton moved.
type Update struct {
	Repton int
	Move   string
	From   lattice.Vector
	To     lattice.Vector
}

// Candidates returns the moves repton index may make: the moves reachable
// from its last move when the chain keeps history (all moves otherwise),
// filtered to those that leave both of its bonds within the link length.
// Neighbours are held fixed.
func (c *Chain) Candidates(index int) ([]string, error) {
	if index < 0 || index >= len(c.positions) {
		return nil, fmt.Errorf("repton index %d out of range [0, %d)", index, len(c.positions))
	}

	base := c.set.Names()
	if c.useHistory && c.lastMove[index] != "" {
		var err error
		if base, err = c.set.ReachableFrom(c.lastMove[index]); err != nil {
			return nil, err
		}
	}

	var bonds []string
	for _, j := range []int{index - 1, index + 1} {
		if j < 0 || j >= len(c.positions) {
			continue
		}
		rel := c.positions[index].Sub(c.positions[j])
		key, ok := c.set.RelativeKey(rel)
		if !ok {
			return nil, &lattice.DomainError{
				Op:     "candidates",
				Reason: fmt.Sprintf("bond %d-%d %s is outside the move vocabulary", j, index, rel),
			}
		}
		bonds = append(bonds, key)
	}

	out := make([]string, 0, len(base))
	for _, name := range base {
		admissible := true
		for _, key := range bonds {
			held, err := c.set.Holds(name, key)
			if err != nil {
				return nil, err
			}
			if !held {
				admissible = false
				break
			}
		}
		if admissible {
			out = append(out, name)
		}
	}
	return out, nil
}

// Rate returns the total rate of the moves repton index may make.
func (c *Chain) Rate(index int) (float64, error) {
	candidates, err := c.Candidates(index)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, name := range candidates {
		r, err := c.set.Rate(name, c.positions[index])
		if err != nil {
			return 0, err
		}
		total += r
	}
	return total, nil
}

// Move displaces repton index alone by a rate-weighted draw from its
// candidates. The candidates are fixed before anything is written, so a
// failed move leaves the chain unchanged.
func (c *Chain) Move(rng *rand.Rand, index int) (Update, error) {
	candidates, err := c.Candidates(index)
	if err != nil {
		return Update{}, fmt.Errorf("move repton %d: %w", index, err)
	}
	if len(candidates) == 0 {
		return Update{}, &lattice.DomainError{
			Op:     "move",
			Reason: fmt.Sprintf("repton %d has no admissible move", index),
		}
	}

	from := c.positions[index]
	name, err := c.set.SelectFrom(rng, candidates, from)
	if err != nil {
		return Update{}, fmt.Errorf("move repton %d: %w", index, err)
	}
	d, err := c.set.Displacement(name)
	if err != nil {
		return Update{}, err
	}

	to := from.Add(d)
	c.positions[index] = to
	c.lastMove[index] = name
	return Update{Repton: index, Move: name, From: from.Clone(), To: to.Clone()}, nil
}
