package deid

import (
	"context"
	"fmt"
	"strconv"

	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/metrics"
)

// Walker applies the Rewriter (forward) or a Resolver (inverse) to every
// text leaf of a document value, rebuilding sequences and mappings with
// their original shape.
type Walker struct {
	Detector Detector
	Entities []string
	Rewriter *Rewriter
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Forward de-identifies v. The returned map covers the whole run: a pair
// seen in one leaf reuses its replacement in every later leaf. If two
// leaves still disagree on a pair, the last visited wins.
//
// Detector errors abort the walk and are wrapped with ErrDetectorFailure
// and the path of the failing leaf.
func (w *Walker) Forward(ctx context.Context, v Value) (Value, ReplacementMap, error) {
	run := NewReplacementMap()
	out, err := w.forward(ctx, v, run, "$")
	if err != nil {
		return Value{}, nil, err
	}
	return out, run, nil
}

func (w *Walker) forward(ctx context.Context, v Value, run ReplacementMap, path string) (Value, error) {
	switch v.Kind() {
	case KindText:
		if v.Str() == "" {
			return v, nil
		}
		spans, err := w.Detector.Detect(ctx, v.Str(), w.Entities)
		if err != nil {
			w.Metrics.RecordDetectorError()
			return Value{}, fmt.Errorf("%w at %s: %w", ErrDetectorFailure, path, err)
		}
		w.Metrics.RecordScan(len(spans))
		if len(spans) == 0 {
			return v, nil
		}
		fragment := NewReplacementMap()
		text, err := w.Rewriter.rewrite(v.Str(), spans, fragment, run)
		if err != nil {
			return Value{}, fmt.Errorf("rewrite %s: %w", path, err)
		}
		run.Merge(fragment)
		return Text(text), nil

	case KindSequence:
		items := make([]Value, len(v.Items()))
		for i, item := range v.Items() {
			out, err := w.forward(ctx, item, run, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return Value{}, err
			}
			items[i] = out
		}
		return Sequence(items...), nil

	case KindMapping:
		fields := make([]Field, len(v.Fields()))
		for i, f := range v.Fields() {
			out, err := w.forward(ctx, f.Value, run, path+"."+f.Key)
			if err != nil {
				return Value{}, err
			}
			fields[i] = KV(f.Key, out)
		}
		return Mapping(fields...), nil

	case KindScalar:
		return v, nil

	default:
		w.unsupported(v, path)
		return v, nil
	}
}

// Inverse restores original text in every leaf of v using m.
func (w *Walker) Inverse(v Value, m ReplacementMap) (Value, error) {
	if m == nil {
		return Value{}, ErrMissingReplacementMap
	}
	res := NewResolver(m)
	if c := res.Collisions(); len(c) > 0 {
		w.Metrics.RecordCollisions(len(c))
		for _, col := range c {
			w.log().Warnf("restore_collision", "%s and %s share replacement %q; restoring as %s",
				col.Dropped.EntityType, col.Kept.EntityType, col.Replacement, logger.Mask(col.Kept.Original))
		}
	}
	return w.inverse(v, res, "$"), nil
}

func (w *Walker) inverse(v Value, res *Resolver, path string) Value {
	switch v.Kind() {
	case KindText:
		return Text(res.Resolve(v.Str()))
	case KindSequence:
		items := make([]Value, len(v.Items()))
		for i, item := range v.Items() {
			items[i] = w.inverse(item, res, path+"["+strconv.Itoa(i)+"]")
		}
		return Sequence(items...)
	case KindMapping:
		fields := make([]Field, len(v.Fields()))
		for i, f := range v.Fields() {
			fields[i] = KV(f.Key, w.inverse(f.Value, res, path+"."+f.Key))
		}
		return Mapping(fields...)
	case KindScalar:
		return v
	default:
		w.unsupported(v, path)
		return v
	}
}

func (w *Walker) unsupported(v Value, path string) {
	w.Metrics.RecordUnsupported()
	w.log().Warnf("unsupported_value", "%v at %s: %T passed through", ErrUnsupportedValueType, path, v.Raw())
}

func (w *Walker) log() *logger.Logger {
	if w.Logger == nil {
		return logger.Discard()
	}
	return w.Logger
}
