// Package detector provides span detectors for the de-identification engine:
// an in-process regex recognizer set and a client for a Presidio analyzer.
package detector

import (
	"context"
	"fmt"
	"sort"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
)

// DefaultMinScore drops matches with a lower recognizer score.
const DefaultMinScore = 0.5

// Regex detects structured PII with compiled patterns. It is safe for
// concurrent use.
type Regex struct {
	recognizers []recognizer
	minScore    float64
	log         *logger.Logger
}

// Option configures a Regex detector.
type Option func(*regexConfig)

type regexConfig struct {
	file     string
	extra    []RecognizerConfig
	minScore float64
	log      *logger.Logger
}

// WithRecognizerFile merges recognizers from a YAML file over the built-ins.
// A missing file is ignored.
func WithRecognizerFile(path string) Option {
	return func(c *regexConfig) { c.file = path }
}

// WithRecognizers merges recs over the built-ins and any recognizer file.
func WithRecognizers(recs ...RecognizerConfig) Option {
	return func(c *regexConfig) { c.extra = append(c.extra, recs...) }
}

// WithMinScore overrides DefaultMinScore.
func WithMinScore(score float64) Option {
	return func(c *regexConfig) { c.minScore = score }
}

// WithLogger sets the detector's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *regexConfig) { c.log = l }
}

// NewRegex builds a Regex detector from the built-in recognizers plus any
// configured overrides.
func NewRegex(opts ...Option) (*Regex, error) {
	cfg := regexConfig{minScore: DefaultMinScore}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.Discard()
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, err
	}
	var fromFile []RecognizerConfig
	if cfg.file != "" {
		rf, err := LoadRecognizerFile(cfg.file)
		if err != nil {
			return nil, err
		}
		if rf == nil {
			cfg.log.Warnf("recognizers", "recognizer file %s not found, using built-ins", cfg.file)
		} else {
			fromFile = rf.Recognizers
		}
	}

	compiled, err := compile(MergeRecognizers(defaults, fromFile, cfg.extra))
	if err != nil {
		return nil, fmt.Errorf("compile recognizers: %w", err)
	}
	cfg.log.Debugf("recognizers", "%d patterns compiled", len(compiled))
	return &Regex{recognizers: compiled, minScore: cfg.minScore, log: cfg.log}, nil
}

// Detect implements deid.Detector. Only recognizers for the wanted entity
// types run; an empty wanted list runs all of them. Where matches overlap,
// the higher score wins, then the longer match, then the earlier one.
// Spans are returned in ascending start order.
func (r *Regex) Detect(ctx context.Context, text string, entities []string) ([]deid.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var wanted map[string]bool
	if len(entities) > 0 {
		wanted = make(map[string]bool, len(entities))
		for _, e := range entities {
			wanted[e] = true
		}
	}

	var candidates []deid.Span
	for _, rec := range r.recognizers {
		if wanted != nil && !wanted[rec.entity] {
			continue
		}
		if rec.score < r.minScore {
			continue
		}
		for _, m := range rec.re.FindAllStringIndex(text, -1) {
			if rec.validate != nil && !rec.validate(text[m[0]:m[1]]) {
				r.log.Debugf("detect", "%s: match at %d failed validation", rec.name, m[0])
				continue
			}
			candidates = append(candidates, deid.Span{Start: m[0], End: m[1], EntityType: rec.entity, Score: rec.score})
		}
	}
	return dropOverlaps(candidates), nil
}

// Entities lists the entity types the detector has recognizers for.
func (r *Regex) Entities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.recognizers {
		if !seen[rec.entity] {
			seen[rec.entity] = true
			out = append(out, rec.entity)
		}
	}
	sort.Strings(out)
	return out
}

func dropOverlaps(spans []deid.Span) []deid.Span {
	if len(spans) < 2 {
		return spans
	}
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	kept := make([]deid.Span, 0, len(spans))
outer:
	for _, s := range spans {
		for _, k := range kept {
			if s.Overlaps(k) {
				continue outer
			}
		}
		kept = append(kept, s)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
