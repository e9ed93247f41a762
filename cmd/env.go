package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stacklens/catalog-ingest/internal/confidence"
	"github.com/stacklens/catalog-ingest/internal/config"
	"github.com/stacklens/catalog-ingest/internal/ocr"
	"github.com/stacklens/catalog-ingest/internal/pipeline"
	"github.com/stacklens/catalog-ingest/internal/session"
	"github.com/stacklens/catalog-ingest/internal/store"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

// env bundles the wired subsystems for one command invocation.
type env struct {
	Store     store.Store
	Inference inference.Client // nil without an API key
	Pipeline  *pipeline.Pipeline
	Sessions  *session.Manager
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the store and wires the pipeline per configuration.
// progress may be nil.
func initEnv(ctx context.Context, progress pipeline.ProgressFunc) (*env, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	var inf inference.Client
	if cfg.Inference.Key != "" {
		inf = inference.NewClient(cfg.Inference.Key, inference.Options{
			Model:          cfg.Inference.Model,
			Timeout:        time.Duration(cfg.Inference.TimeoutSecs) * time.Second,
			RequestsPerSec: cfg.Inference.RequestsPerSec,
		})
	}

	extractor, err := ocr.NewExtractor(cfg.OCR, inf)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	pipe, err := pipeline.New(cfg, st, inf, extractor, progress)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	ttl := time.Duration(cfg.Session.TTLHours) * time.Hour
	adjuster := confidence.NewAdjuster(cfg.Confidence.LearningRate, cfg.Confidence.DecayRate, cfg.Confidence.Min, cfg.Confidence.Max)
	sessions := session.NewManager(session.NewMemoryRepository(), cfg.Session.BatchSize, cfg.Session.SamplingThreshold, ttl).
		WithAdjuster(adjuster)

	return &env{Store: st, Inference: inf, Pipeline: pipe, Sessions: sessions}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
