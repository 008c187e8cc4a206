package sampler

import (
	"fmt"

	"github.com/spf13/cast"
)

// Run parameter keys.
const (
	ParamEpsilon   = "epsilon"
	ParamParticles = "particles"
	ParamReptons   = "reptons"
)

// Params are the run parameters a driver attaches to every configuration
// snapshot.
type Params map[string]any

// Float returns the parameter as float64.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, &MissingConfigurationError{Key: key}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return f, nil
}

// Int returns the parameter as int.
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, &MissingConfigurationError{Key: key}
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return n, nil
}
