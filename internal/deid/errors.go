package deid

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Callers match them with errors.Is.
var (
	// ErrUnsupportedValueType marks a document value that is neither text,
	// a sequence, a mapping, nor a plain scalar. It is logged, never returned
	// from a walk: such values pass through unchanged.
	ErrUnsupportedValueType = errors.New("unsupported value type")

	// ErrMissingReplacementMap is returned by re-identification without a map.
	ErrMissingReplacementMap = errors.New("replacement map required for re-identification")

	// ErrDetectorFailure wraps any error returned by a span detector.
	ErrDetectorFailure = errors.New("span detector failed")
)

// ValidationError reports a span rejected in strict mode.
type ValidationError struct {
	Span    Span
	Other   *Span // the overlapping span, if any
	TextLen int
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Other != nil {
		return fmt.Sprintf("invalid span %s: %s %s", e.Span, e.Reason, *e.Other)
	}
	return fmt.Sprintf("invalid span %s: %s (text length %d)", e.Span, e.Reason, e.TextLen)
}
