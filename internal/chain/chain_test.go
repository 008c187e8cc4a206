package chain

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reptation/internal/lattice"
)

func squareSet(t *testing.T) *lattice.Set {
	t.Helper()
	set, err := lattice.NewSet(lattice.Square(), 1.0)
	require.NoError(t, err)
	return set
}

func isUnitMove(set *lattice.Set, d lattice.Vector) bool {
	for _, v := range set.AllTranslations() {
		if v.Equal(d) {
			return true
		}
	}
	return false
}

func TestNewChainIsUnitStepWalk(t *testing.T) {
	set := squareSet(t)
	c, err := New(set, 40, rand.New(rand.NewSource(1)), InitFreelyJointed)
	require.NoError(t, err)

	positions := c.Positions()
	require.Len(t, positions, 40)
	assert.True(t, positions[0].Equal(lattice.Vector{0, 0}))
	for i := 1; i < len(positions); i++ {
		assert.True(t, isUnitMove(set, positions[i].Sub(positions[i-1])), "bond %d", i)
	}
	assert.NoError(t, c.Validate())
}

func TestNewChainLengths(t *testing.T) {
	set := squareSet(t)
	_, err := New(set, 0, rand.New(rand.NewSource(1)), InitFreelyJointed)
	assert.ErrorIs(t, err, ErrInvalidLength)

	c, err := New(set, 1, rand.New(rand.NewSource(1)), InitFreelyJointed)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.CenterOfMass().Equal(lattice.Vector{0, 0}))
}

func TestNewChainRejectsUnchainableSet(t *testing.T) {
	set, err := lattice.NewSet(lattice.Square(), 1.5)
	require.NoError(t, err)
	_, err = New(set, 5, rand.New(rand.NewSource(1)), InitFreelyJointed)
	assert.Error(t, err)
}

func TestConditionedInitFollowsReachability(t *testing.T) {
	// With unit link length a move only reaches itself, so the chain is a rod.
	set := squareSet(t)
	c, err := New(set, 10, rand.New(rand.NewSource(5)), InitConditioned)
	require.NoError(t, err)

	first := c.Position(1).Sub(c.Position(0))
	for i := 2; i < c.Len(); i++ {
		assert.True(t, first.Equal(c.Position(i).Sub(c.Position(i-1))))
	}
}

func TestChainIsReproducible(t *testing.T) {
	set := squareSet(t)
	a, err := New(set, 20, rand.New(rand.NewSource(8)), InitFreelyJointed)
	require.NoError(t, err)
	b, err := New(set, 20, rand.New(rand.NewSource(8)), InitFreelyJointed)
	require.NoError(t, err)
	assert.Equal(t, a.Positions(), b.Positions())
}

func TestPositionsAreCopies(t *testing.T) {
	c, err := New(squareSet(t), 3, rand.New(rand.NewSource(2)), InitFreelyJointed)
	require.NoError(t, err)

	p := c.Position(0)
	p[0] = 99
	all := c.Positions()
	all[1][1] = 99
	assert.True(t, c.Position(0).Equal(lattice.Vector{0, 0}))
	assert.NotEqual(t, 99.0, c.Position(1)[1])
}

func TestCenterOfMass(t *testing.T) {
	c, err := New(squareSet(t), 2, rand.New(rand.NewSource(2)), InitFreelyJointed)
	require.NoError(t, err)
	c.positions[0] = lattice.Vector{0, 0}
	c.positions[1] = lattice.Vector{1, 0}
	assert.True(t, c.CenterOfMass().Equal(lattice.Vector{0.5, 0}))
}

func TestMoveKeepsBondsWithinLinkLength(t *testing.T) {
	for _, topo := range []lattice.Topology{lattice.Square(), lattice.Cubic()} {
		set, err := lattice.NewSet(topo, 1.0)
		require.NoError(t, err)
		rng := rand.New(rand.NewSource(13))
		c, err := New(set, 12, rng, InitFreelyJointed)
		require.NoError(t, err)

		accepted := 0
		for step := 0; step < 5000; step++ {
			i := rng.Intn(c.Len())
			candidates, err := c.Candidates(i)
			require.NoError(t, err)
			if len(candidates) == 0 {
				continue
			}
			_, err = c.Move(rng, i)
			require.NoError(t, err)
			require.NoError(t, c.Validate(), "%s step %d", topo.Name, step)
			accepted++
		}
		assert.Greater(t, accepted, 1000, topo.Name)
	}
}

func TestMoveDisplacesOneRepton(t *testing.T) {
	set := squareSet(t)
	rng := rand.New(rand.NewSource(1))
	c, err := New(set, 10, rng, InitFreelyJointed)
	require.NoError(t, err)

	accepted, stalled := 0, 0
	for step := 0; step < 1000; step++ {
		i := rng.Intn(c.Len())
		before := c.Positions()

		u, err := c.Move(rng, i)
		if err != nil {
			assert.ErrorIs(t, err, lattice.ErrDomain)
			assert.Equal(t, before, c.Positions())
			stalled++
			continue
		}
		accepted++
		assert.Equal(t, i, u.Repton)

		after := c.Positions()
		changed := 0
		for k := range after {
			if !after[k].Equal(before[k]) {
				changed++
				assert.Equal(t, i, k)
			}
		}
		assert.Equal(t, 1, changed, "step %d", step)

		d, err := set.Displacement(u.Move)
		require.NoError(t, err)
		assert.True(t, before[i].Equal(u.From))
		assert.True(t, before[i].Add(d).Equal(u.To))
		assert.True(t, after[i].Equal(u.To))
		require.NoError(t, c.Validate())
	}
	assert.Greater(t, accepted, 0)
	assert.Greater(t, stalled, 0)
}

func TestCandidates(t *testing.T) {
	set := squareSet(t)
	c, err := New(set, 3, rand.New(rand.NewSource(1)), InitFreelyJointed)
	require.NoError(t, err)

	// Straight rod: the middle repton is locked, each end may only fold
	// onto its neighbour.
	c.positions = []lattice.Vector{{0, 0}, {0, 1}, {0, 2}}
	got, err := c.Candidates(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, got)
	got, err = c.Candidates(1)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = c.Candidates(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, got)

	// Hairpin: the tip may fold back onto both neighbours at once.
	c.positions = []lattice.Vector{{0, 0}, {1, 0}, {0, 0}}
	got, err = c.Candidates(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"left"}, got)

	// Stored length: a repton sharing both neighbours' site is free.
	c.positions = []lattice.Vector{{0, 0}, {0, 0}, {0, 0}}
	got, err = c.Candidates(1)
	require.NoError(t, err)
	assert.Equal(t, set.Names(), got)

	_, err = c.Candidates(3)
	assert.Error(t, err)
}

func TestCandidatesFollowHistory(t *testing.T) {
	set := squareSet(t)
	c, err := New(set, 2, rand.New(rand.NewSource(1)), InitFreelyJointed, WithHistory(true))
	require.NoError(t, err)

	c.positions = []lattice.Vector{{0, 0}, {0, 0}}
	got, err := c.Candidates(0)
	require.NoError(t, err)
	assert.Equal(t, set.Names(), got)

	c.lastMove[0] = "right"
	got, err = c.Candidates(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"right"}, got)

	// Reachable from its last move, but the bond would stretch.
	c.positions = []lattice.Vector{{0, 0}, {-1, 0}}
	got, err = c.Candidates(0)
	require.NoError(t, err)
	assert.Empty(t, got)
	rate, err := c.Rate(0)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestRateSumsCandidates(t *testing.T) {
	set := squareSet(t)
	c, err := New(set, 3, rand.New(rand.NewSource(1)), InitFreelyJointed)
	require.NoError(t, err)

	c.positions = []lattice.Vector{{0, 0}, {0, 1}, {0, 2}}
	r, err := c.Rate(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, r, 1e-12)
	r, err = c.Rate(1)
	require.NoError(t, err)
	assert.Zero(t, r)

	c.positions = []lattice.Vector{{0, 0}, {0, 0}, {0, 0}}
	r, err = c.Rate(1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-12)
}

func TestMoveOutOfRange(t *testing.T) {
	c, err := New(squareSet(t), 3, rand.New(rand.NewSource(1)), InitFreelyJointed)
	require.NoError(t, err)
	_, err = c.Move(rand.New(rand.NewSource(1)), 3)
	assert.Error(t, err)
	_, err = c.Move(rand.New(rand.NewSource(1)), -1)
	assert.Error(t, err)
}

func TestMoveFailureLeavesChainUnchanged(t *testing.T) {
	set := squareSet(t)
	c, err := New(set, 3, rand.New(rand.NewSource(1)), InitFreelyJointed)
	require.NoError(t, err)

	// A diagonal bond is outside the move vocabulary.
	c.positions = []lattice.Vector{{0, 0}, {1, 1}, {1, 2}}
	before := c.Positions()
	_, err = c.Move(rand.New(rand.NewSource(4)), 1)
	var de *lattice.DomainError
	assert.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, lattice.ErrDomain)
	assert.Equal(t, before, c.Positions())

	// A locked repton has no admissible move.
	c.positions = []lattice.Vector{{0, 0}, {0, 1}, {0, 2}}
	before = c.Positions()
	_, err = c.Move(rand.New(rand.NewSource(4)), 1)
	assert.ErrorIs(t, err, lattice.ErrDomain)
	assert.Equal(t, before, c.Positions())
}

func TestHistoryConditionsMoves(t *testing.T) {
	set := squareSet(t)
	rng := rand.New(rand.NewSource(3))
	c, err := New(set, 1, rng, InitFreelyJointed, WithHistory(true))
	require.NoError(t, err)

	first, err := c.Move(rng, 0)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		u, err := c.Move(rng, 0)
		require.NoError(t, err)
		assert.Equal(t, first.Move, u.Move)
	}
}

func TestParseInitPolicy(t *testing.T) {
	p, err := ParseInitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, InitFreelyJointed, p)
	p, err = ParseInitPolicy("conditioned")
	require.NoError(t, err)
	assert.Equal(t, InitConditioned, p)
	assert.Equal(t, "conditioned", p.String())
	_, err = ParseInitPolicy("spiral")
	assert.Error(t, err)
}
