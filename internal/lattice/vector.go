// Package lattice provides the move vocabulary of a lattice topology:
// displacement vectors, their rates, the reachability table between moves,
// and the inverse-CDF move selector.
package lattice

import (
	"fmt"
	"strings"
)

// Vector is a point or displacement in D-dimensional lattice space.
type Vector []float64

// NewVector returns the zero vector of the given dimension.
func NewVector(dim int) Vector {
	return make(Vector, dim)
}

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Add returns v + w. Both vectors must have the same dimension.
func (v Vector) Add(w Vector) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] + w[i]
	}
	return out
}

// Sub returns v - w.
func (v Vector) Sub(w Vector) Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] - w[i]
	}
	return out
}

// Equal reports whether v and w have identical components.
func (v Vector) Equal(w Vector) bool {
	if len(v) != len(w) {
		return false
	}
	for i := range v {
		if v[i] != w[i] {
			return false
		}
	}
	return true
}

// SquaredNorm returns the squared Euclidean length of v.
func (v Vector) SquaredNorm() float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return sum
}

// SquaredDistance returns |a - b|².
func SquaredDistance(a, b Vector) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
