package sampler

import (
	"errors"
	"fmt"

	"github.com/talgya/reptation/internal/lattice"
)

var (
	ErrMissingConfiguration = errors.New("sampler: missing configuration")
	ErrZeroElapsedTime      = errors.New("sampler: zero elapsed time")
	ErrNoResults            = errors.New("sampler: no results to merge")
	ErrKindExists           = errors.New("sampler: kind already registered")
	ErrKindNotFound         = errors.New("sampler: kind not found")
)

// MissingConfigurationError reports a run parameter absent from a
// configuration snapshot.
type MissingConfigurationError struct {
	Key string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingConfiguration.Error(), e.Key)
}

func (e *MissingConfigurationError) Unwrap() error {
	return ErrMissingConfiguration
}

// ZeroTimeError reports a run that never accumulated time, usually because
// it never got past its warm-up. It matches both ErrZeroElapsedTime and
// lattice.ErrDomain.
type ZeroTimeError struct {
	Kind string
	Run  int
}

func (e *ZeroTimeError) Error() string {
	return fmt.Sprintf("%s: merge %s: run %d", ErrZeroElapsedTime.Error(), e.Kind, e.Run)
}

func (e *ZeroTimeError) Unwrap() []error {
	return []error{ErrZeroElapsedTime, lattice.ErrDomain}
}
