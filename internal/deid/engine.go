// Package deid is the reversible substitution engine.
//
// A forward pass sends every text leaf of a document through a Detector,
// replaces the detected spans with synthetic stand-ins, and records what was
// replaced in a ReplacementMap. The inverse pass uses that map to restore the
// original text. The engine is synchronous and keeps no state between calls;
// independent documents may be processed concurrently by one Engine.
package deid

import (
	"context"
	"errors"
	"time"

	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/metrics"
)

// Options configures an Engine.
type Options struct {
	Detector   Detector
	Entities   []string       // defaults to DefaultEntities
	Generators GeneratorTable // defaults to DefaultGenerators(0)
	Strict     bool
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// Engine ties a detector, a generator table, and the walker together.
type Engine struct {
	walker  *Walker
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Detector == nil {
		return nil, errors.New("deid: a detector is required")
	}
	if len(opts.Entities) == 0 {
		opts.Entities = DefaultEntities
	}
	if opts.Generators == nil {
		opts.Generators = DefaultGenerators(0)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	rw := &Rewriter{
		Generators: opts.Generators,
		Strict:     opts.Strict,
		Logger:     opts.Logger.Named("REWRITER"),
		Metrics:    opts.Metrics,
	}
	return &Engine{
		walker: &Walker{
			Detector: opts.Detector,
			Entities: opts.Entities,
			Rewriter: rw,
			Logger:   opts.Logger.Named("WALKER"),
			Metrics:  opts.Metrics,
		},
		log:     opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Deidentify returns a de-identified copy of v and the run's replacement map.
func (e *Engine) Deidentify(ctx context.Context, v Value) (Value, ReplacementMap, error) {
	start := time.Now()
	out, m, err := e.walker.Forward(ctx, v)
	if err != nil {
		e.log.Errorf("deidentify", "%v", err)
		return Value{}, nil, err
	}
	e.metrics.RecordDeidentify(time.Since(start))
	e.log.Infof("deidentify", "%d replacements across %d entity types", m.Len(), len(m))
	return out, m, nil
}

// Reidentify restores the original content of v. A nil map yields
// ErrMissingReplacementMap; an empty one returns v unchanged.
func (e *Engine) Reidentify(v Value, m ReplacementMap) (Value, error) {
	start := time.Now()
	out, err := e.walker.Inverse(v, m)
	if err != nil {
		return Value{}, err
	}
	e.metrics.RecordReidentify(time.Since(start))
	e.log.Infof("reidentify", "%d replacements applied", m.Len())
	return out, nil
}

// DeidentifyText is Deidentify for a single string.
func (e *Engine) DeidentifyText(ctx context.Context, text string) (string, ReplacementMap, error) {
	out, m, err := e.Deidentify(ctx, Text(text))
	if err != nil {
		return "", nil, err
	}
	return out.Str(), m, nil
}

// ReidentifyText is Reidentify for a single string.
func (e *Engine) ReidentifyText(text string, m ReplacementMap) (string, error) {
	out, err := e.Reidentify(Text(text), m)
	if err != nil {
		return "", err
	}
	return out.Str(), nil
}

// Entities returns the entity types requested from the detector.
func (e *Engine) Entities() []string {
	return e.walker.Entities
}
