package deid

import (
	"context"
	"fmt"
)

// Span is a detected candidate for substitution: the byte range
// [Start, End) of a single text value, tagged with an entity type.
type Span struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	EntityType string  `json:"entity_type"`
	Score      float64 `json:"score,omitempty"`
}

func (s Span) String() string {
	return fmt.Sprintf("%s[%d:%d]", s.EntityType, s.Start, s.End)
}

// Valid reports whether 0 <= Start < End <= textLen.
func (s Span) Valid(textLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= textLen
}

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Detector finds PII spans in a text value. Implementations live outside
// this package; the engine only relies on the Span shape.
type Detector interface {
	Detect(ctx context.Context, text string, entities []string) ([]Span, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(ctx context.Context, text string, entities []string) ([]Span, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, text string, entities []string) ([]Span, error) {
	return f(ctx, text, entities)
}

// DefaultEntities are the entity types requested from the detector when no
// explicit list is configured.
var DefaultEntities = []string{
	"PERSON",
	"EMAIL_ADDRESS",
	"PHONE_NUMBER",
	"US_SSN",
	"CREDIT_CARD",
	"US_BANK_NUMBER",
	"US_DRIVER_LICENSE",
	"US_PASSPORT",
	"US_ITIN",
	"LOCATION",
	"DATE_TIME",
	"NRP",
	"IP_ADDRESS",
	"DOMAIN_NAME",
	"URL",
}
