// Package pipeline runs whole files through the engine: parse, walk, save
// the processed copy, and keep the replacement map next to it and in the
// map store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/format"
	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/mapstore"
	"document-deidentifier/internal/relocate"
)

// Mode selects the direction of a run.
type Mode int

const (
	Deidentify Mode = iota
	Reidentify
)

func (m Mode) String() string {
	if m == Reidentify {
		return "reidentify"
	}
	return "deidentify"
}

// ParseMode accepts "deidentify" or "reidentify".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "deidentify", "deid":
		return Deidentify, nil
	case "reidentify", "reid":
		return Reidentify, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Result describes one processed file.
type Result struct {
	Input        string `json:"input"`
	Output       string `json:"output"`
	MappingsPath string `json:"mappingsPath,omitempty"`
	RunID        string `json:"runId,omitempty"`
	Replacements int    `json:"replacements"`
}

// Pipeline wires the engine to file formats, the map store and the
// annotator.
type Pipeline struct {
	Engine    *deid.Engine
	Store     mapstore.Store // optional
	Annotator *relocate.Annotator
	Logger    *logger.Logger

	// OutputFormat is the extension of processed copies, such as "json"
	// or "txt". Empty keeps the input's extension.
	OutputFormat string
}

// New returns a Pipeline. store may be nil.
func New(engine *deid.Engine, store mapstore.Store, annotator *relocate.Annotator, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{Engine: engine, Store: store, Annotator: annotator, Logger: log}
}

// ProcessFile processes in and writes <stem>_processed<ext> to outDir, where
// ext is OutputFormat or the input's extension. When
// de-identifying it also writes <stem>_mappings.json and stores the map.
// Re-identification requires m.
func (p *Pipeline) ProcessFile(ctx context.Context, in, outDir string, mode Mode, m deid.ReplacementMap) (Result, error) {
	adapter, err := format.ForPath(in)
	if err != nil {
		return Result{}, err
	}
	if mode == Reidentify && m == nil {
		return Result{}, deid.ErrMissingReplacementMap
	}
	ext, err := p.outputExt(in)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	doc, err := adapter.Parse(in)
	if err != nil {
		return Result{}, err
	}
	p.Logger.Infof("parse", "%s parsed as %s", in, adapter.Name())

	stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	res := Result{Input: in}

	switch mode {
	case Deidentify:
		out, run, err := p.Engine.Deidentify(ctx, doc.Value)
		if err != nil {
			return Result{}, fmt.Errorf("deidentify %s: %w", in, err)
		}
		doc.Value = out
		res.Replacements = run.Len()

		res.MappingsPath = filepath.Join(outDir, stem+"_mappings.json")
		if err := mapstore.WriteMapFile(res.MappingsPath, run); err != nil {
			return Result{}, err
		}
		if p.Store != nil {
			rec, err := p.Store.Save(in, run)
			if err != nil {
				return Result{}, fmt.Errorf("store map: %w", err)
			}
			res.RunID = rec.ID
		}

	case Reidentify:
		out, err := p.Engine.Reidentify(doc.Value, m)
		if err != nil {
			return Result{}, fmt.Errorf("reidentify %s: %w", in, err)
		}
		doc.Value = out
		res.Replacements = m.Len()
	}

	written, err := adapter.Save(doc, filepath.Join(outDir, stem+"_processed"+ext))
	if err != nil {
		return Result{}, err
	}
	res.Output = written
	p.Logger.Infof(mode.String(), "%s -> %s (%d replacements)", in, written, res.Replacements)
	return res, nil
}

func (p *Pipeline) outputExt(in string) (string, error) {
	if p.OutputFormat == "" {
		return filepath.Ext(in), nil
	}
	f := strings.ToLower(strings.TrimPrefix(p.OutputFormat, "."))
	if f == "" || strings.ContainsAny(f, `./\ `) {
		return "", fmt.Errorf("invalid output format %q", p.OutputFormat)
	}
	return "." + f, nil
}

// ProcessDir processes every regular file directly under inDir. Files with
// unsupported extensions are skipped with a warning; failures on individual
// files do not stop the run and are returned joined.
func (p *Pipeline) ProcessDir(ctx context.Context, inDir, outDir string, mode Mode, m deid.ReplacementMap) ([]Result, error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", inDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		results []Result
		errs    []error
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		path := filepath.Join(inDir, e.Name())
		if _, err := format.ForPath(path); err != nil {
			p.Logger.Warnf("skip", "%s: %v", path, err)
			continue
		}
		res, err := p.ProcessFile(ctx, path, outDir, mode, m)
		if err != nil {
			p.Logger.Errorf(mode.String(), "%s: %v", path, err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// LoadMap resolves ref as a map file path, falling back to a run ID in the
// store.
func (p *Pipeline) LoadMap(ref string) (deid.ReplacementMap, error) {
	if _, err := os.Stat(ref); err == nil {
		return mapstore.ReadMapFile(ref)
	}
	if p.Store == nil {
		return nil, fmt.Errorf("%w: no map file %s", mapstore.ErrNotFound, ref)
	}
	rec, err := p.Store.Get(ref)
	if err != nil {
		return nil, err
	}
	return rec.Mappings, nil
}

// Visualize highlights every original of the map at mapRef (file or run ID)
// in the document at src. out defaults to <stem>_visualized<ext> next to
// src, so a PDF gets an annotated PDF and an overlay gets an overlay.
func (p *Pipeline) Visualize(ctx context.Context, src, mapRef, out string) (Result, error) {
	m, err := p.LoadMap(mapRef)
	if err != nil {
		return Result{}, err
	}
	if out == "" {
		out = strings.TrimSuffix(src, filepath.Ext(src)) + "_visualized" + filepath.Ext(src)
	}
	n, err := p.Annotator.Visualize(ctx, src, out, m)
	if err != nil {
		return Result{}, err
	}
	p.Logger.Infof("visualize", "%s -> %s (%d occurrences)", src, out, n)
	return Result{Input: src, Output: out, MappingsPath: mapRef, Replacements: n}, nil
}
