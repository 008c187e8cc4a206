package lattice

import "math/rand"

// Select draws one move by inverse-CDF sampling. With an empty antecedent
// every move is a candidate; otherwise only the moves reachable from the
// antecedent are. from is the position of the moving repton, used by
// position-dependent rate models.
func (s *Set) Select(rng *rand.Rand, antecedent string, from Vector) (string, error) {
	if antecedent == "" {
		return s.SelectFrom(rng, s.Names(), from)
	}
	candidates, err := s.ReachableFrom(antecedent)
	if err != nil {
		return "", err
	}
	return s.SelectFrom(rng, candidates, from)
}

// SelectFrom draws one of candidates with probability proportional to its
// rate. Cumulative rates are accumulated in the order given; the first
// candidate whose cumulative rate reaches the uniform draw wins. Zero-rate
// candidates are never returned.
func (s *Set) SelectFrom(rng *rand.Rand, candidates []string, from Vector) (string, error) {
	if len(candidates) == 0 {
		return "", domainErr("select", "empty candidate set")
	}

	cumulative := make([]float64, len(candidates))
	total := 0.0
	for i, name := range candidates {
		r, err := s.Rate(name, from)
		if err != nil {
			return "", err
		}
		total += r
		cumulative[i] = total
	}
	if total <= 0 {
		return "", domainErr("select", "total rate of %d candidates is zero", len(candidates))
	}

	draw := rng.Float64() * total
	prev := 0.0
	for i, c := range cumulative {
		if c > prev && c >= draw {
			return candidates[i], nil
		}
		prev = c
	}
	// Rounding can leave the draw a hair above the last sum.
	for i := len(candidates) - 1; i >= 0; i-- {
		if i == 0 || cumulative[i] > cumulative[i-1] {
			return candidates[i], nil
		}
	}
	return candidates[len(candidates)-1], nil
}
