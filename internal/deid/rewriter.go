package deid

import (
	"sort"

	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/metrics"
)

// Rewriter substitutes detected spans in a single text value.
type Rewriter struct {
	Generators GeneratorTable

	// Strict rejects out-of-range and overlapping spans with a
	// *ValidationError. Otherwise out-of-range spans are dropped with a
	// warning and overlaps are applied as-is (see rewrite).
	Strict bool

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// NewRewriter returns a non-strict Rewriter using gen.
func NewRewriter(gen GeneratorTable) *Rewriter {
	return &Rewriter{Generators: gen, Logger: logger.Discard()}
}

// Rewrite replaces every span of text with a synthetic value and returns the
// new text with the fragment of the replacement map it produced. Spans may
// arrive in any order and may overlap.
func (r *Rewriter) Rewrite(text string, spans []Span) (string, ReplacementMap, error) {
	fragment := NewReplacementMap()
	out, err := r.rewrite(text, spans, fragment, nil)
	if err != nil {
		return text, nil, err
	}
	return out, fragment, nil
}

// rewrite substitutes spans in descending start order, so every splice is
// computed against offsets that earlier splices have not shifted.
//
// A replacement already recorded for the pair in fragment or run is reused;
// otherwise the generator is called once and the result recorded in fragment.
//
// With overlapping spans the lower-offset splice may consume text a
// higher-offset splice already replaced. Indices past the end of the
// partially rewritten text are clamped.
func (r *Rewriter) rewrite(text string, spans []Span, fragment, run ReplacementMap) (string, error) {
	ordered, err := r.order(text, spans)
	if err != nil {
		return text, err
	}

	out := text
	for _, s := range ordered {
		original := text[s.Start:s.End]

		replacement, reused := fragment.Lookup(s.EntityType, original)
		if !reused && run != nil {
			replacement, reused = run.Lookup(s.EntityType, original)
		}
		if !reused {
			replacement = r.Generators.Generate(s.EntityType, original)
		}
		fragment.Set(s.EntityType, original, replacement)
		r.Metrics.RecordReplacement(s.EntityType, reused)

		r.log().Debugf("replace", "%s %q -> %q (reused=%v)", s, logger.Mask(original), replacement, reused)
		out = splice(out, s.Start, s.End, replacement)
	}
	return out, nil
}

// order validates spans and returns a copy sorted by start, descending.
func (r *Rewriter) order(text string, spans []Span) ([]Span, error) {
	ordered := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Valid(len(text)) {
			ordered = append(ordered, s)
			continue
		}
		if r.Strict {
			return nil, &ValidationError{Span: s, TextLen: len(text), Reason: "out of range"}
		}
		r.log().Warnf("invalid_span", "dropping %s: text length %d", s, len(text))
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	if r.Strict {
		for i := 1; i < len(ordered); i++ {
			// ordered[i] starts at or before ordered[i-1].
			if ordered[i].Overlaps(ordered[i-1]) {
				other := ordered[i-1]
				return nil, &ValidationError{Span: ordered[i], Other: &other, Reason: "overlaps"}
			}
		}
	}
	return ordered, nil
}

func (r *Rewriter) log() *logger.Logger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger
}

// splice returns s[:start] + repl + s[end:], clamping both indices to len(s).
func splice(s string, start, end int, repl string) string {
	if start > len(s) {
		start = len(s)
	}
	if end > len(s) {
		end = len(s)
	}
	return s[:start] + repl + s[end:]
}
