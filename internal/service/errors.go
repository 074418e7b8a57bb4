package service

import (
	"errors"
	"fmt"

	"github.com/emrgen/docrender/internal/store"
)

var (
	// ErrPrecondition is returned for invalid input: unknown language, empty title, malformed id.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound is returned when a document, artifact or link is absent, or
	// when the actor is not allowed to see it.
	ErrNotFound = errors.New("not found")
	// ErrRender is returned when a document could not be compiled.
	ErrRender = errors.New("could not produce document")
	// ErrStore is returned when the persistence layer fails.
	ErrStore = errors.New("store failure")
	// ErrTokenExhausted is returned when no free share token could be generated.
	ErrTokenExhausted = errors.New("could not allocate a unique share token")
)

// RenderError is a failed compilation of one document version.
// It matches both ErrRender and the underlying compiler error.
type RenderError struct {
	DocumentID string
	Version    string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render document %s at %s: %v", e.DocumentID, e.Version, e.Err)
}

func (e *RenderError) Unwrap() []error {
	return []error{ErrRender, e.Err}
}

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// storeError maps persistence failures onto the service taxonomy.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	}

	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
