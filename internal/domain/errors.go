package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed request; nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals an unknown plan, version, day or spot.
	ErrNotFound = errors.New("not found")
	// ErrProviderUnavailable signals a failed distance/duration lookup.
	ErrProviderUnavailable = errors.New("distance provider unavailable")
	// ErrUnsupportedMode signals a travel mode the provider cannot route.
	// It says nothing about the provider's health.
	ErrUnsupportedMode = errors.New("travel mode not supported by provider")
	// ErrConsistencyViolation signals a concurrent modification of a route version.
	ErrConsistencyViolation = errors.New("consistency violation")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %s", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConsistencyError is returned when stored totals or the stored revision
// no longer match what a mutation read. Callers re-read and retry.
type ConsistencyError struct {
	PlanID  string
	Version int
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: route %s v%d: %s", ErrConsistencyViolation, e.PlanID, e.Version, e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistencyViolation }
