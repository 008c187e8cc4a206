package lattice

import (
	"errors"
	"fmt"
)

var (
	// ErrDomain marks a request with no valid outcome, e.g. selecting from an
	// empty candidate set. Callers treat it as a stalled chain.
	ErrDomain = errors.New("lattice: no valid move")

	ErrUnknownMove       = errors.New("lattice: unknown move")
	ErrInvalidRate       = errors.New("lattice: rate must be finite and non-negative")
	ErrInvalidLinkLength = errors.New("lattice: link length must be positive and finite")
)

// DomainError carries the context of an ErrDomain failure.
type DomainError struct {
	Op     string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrDomain.Error(), e.Op, e.Reason)
}

func (e *DomainError) Unwrap() error {
	return ErrDomain
}

func domainErr(op, format string, args ...any) error {
	return &DomainError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
