package main

import (
	"fmt"
	"io"

	"document-deidentifier/internal/config"
	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/detector"
	"document-deidentifier/internal/format"
	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/mapstore"
	"document-deidentifier/internal/metrics"
	"document-deidentifier/internal/pipeline"
	"document-deidentifier/internal/relocate"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	engine   *deid.Engine
	store    mapstore.Store
	pipeline *pipeline.Pipeline
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	log := logger.NewWithWriter("MAIN", cfg.LogLevel, logOut)
	m := metrics.New()

	det, err := newDetector(cfg, log.Named("DETECTOR"), m)
	if err != nil {
		return nil, err
	}
	engine, err := deid.NewEngine(deid.Options{
		Detector:   det,
		Entities:   cfg.Entities,
		Generators: deid.DefaultGenerators(cfg.GeneratorSeed),
		Strict:     cfg.StrictSpans,
		Logger:     log.Named("ENGINE"),
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	colors, err := relocate.ParseColorTable(cfg.ColorPairs())
	if err != nil {
		return nil, fmt.Errorf("colors: %w", err)
	}
	annotator := relocate.NewAnnotator(log.Named("RELOCATE"), m)
	annotator.Colors = colors
	annotator.Opacity = cfg.HighlightOpacity

	store, err := mapstore.Open(cfg.MapStorePath, log.Named("MAPSTORE"))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		engine:   engine,
		store:    store,
		pipeline: pipeline.New(engine, store, annotator, log.Named("PIPELINE")),
	}, nil
}

func newDetector(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (deid.Detector, error) {
	var det deid.Detector
	switch cfg.Detector {
	case config.DetectorPresidio:
		log.Infof("init", "using Presidio analyzer at %s", cfg.PresidioEndpoint)
		det = detector.NewPresidio(cfg.PresidioEndpoint, cfg.Language, cfg.MinScore, log)
	default:
		re, err := detector.NewRegex(
			detector.WithRecognizerFile(cfg.RecognizerFile),
			detector.WithMinScore(cfg.MinScore),
			detector.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		det = re
	}
	if cfg.DetectionCacheSize > 0 {
		det = detector.NewCached(det, cfg.DetectionCacheSize, log, m)
	}
	return det, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func formatsList() []string {
	return format.Extensions()
}
