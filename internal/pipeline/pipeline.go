// Package pipeline orchestrates document ingestion end to end: format
// detection, structure analysis, field mapping, extraction, validation,
// deduplication and cross-item validation. Documents in one batch are
// processed concurrently; a failed document contributes zero items and a
// warning, never a batch failure.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stacklens/catalog-ingest/internal/config"
	"github.com/stacklens/catalog-ingest/internal/crossval"
	"github.com/stacklens/catalog-ingest/internal/dedup"
	"github.com/stacklens/catalog-ingest/internal/learn"
	"github.com/stacklens/catalog-ingest/internal/mapping"
	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/ocr"
	"github.com/stacklens/catalog-ingest/internal/resilience"
	"github.com/stacklens/catalog-ingest/internal/schema"
	"github.com/stacklens/catalog-ingest/internal/store"
	"github.com/stacklens/catalog-ingest/internal/validate"
	"github.com/stacklens/catalog-ingest/pkg/inference"
)

// reviewReasonFailed is the review queue reason for failed documents.
const reviewReasonFailed = "document ingestion failed"

// cacheTTL bounds how long a finished ingestion may be replayed from cache.
const cacheTTL = 24 * time.Hour

// Pipeline runs the full ingestion flow for a tenant's document batches.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	inf       inference.Client // may be nil: heuristics only
	ocr       ocr.Extractor
	analyzer  *schema.Analyzer
	cascade   *mapping.Cascade
	aliases   mapping.AliasDictionary
	validator *validate.Engine
	deduper   *dedup.Engine
	opts      mapping.TransformOptions
	retry     resilience.RetryConfig
	progress  ProgressFunc
}

// New assembles a pipeline from configuration. inf may be nil, which
// disables every inference escalation path.
func New(cfg *config.Config, st store.Store, inf inference.Client, extractor ocr.Extractor, progress ProgressFunc) (*Pipeline, error) {
	aliases := mapping.DefaultAliases()
	if cfg.Mapping.AliasPath != "" {
		loaded, err := mapping.LoadAliases(cfg.Mapping.AliasPath)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load aliases")
		}
		aliases = loaded
	}

	var matcherClient mapping.InferenceMatcherClient
	var arbiter dedup.Arbiter
	if inf != nil {
		if cfg.Mapping.EnableInference {
			matcherClient = inf
		}
		arbiter = inf
	}

	opts := mapping.DefaultTransformOptions()
	if len(cfg.Mapping.DateFormats) > 0 {
		opts.DateFormats = cfg.Mapping.DateFormats
	}
	if len(cfg.Mapping.ListDelimiters) > 0 {
		opts.ListDelimiters = cfg.Mapping.ListDelimiters
	}

	return &Pipeline{
		cfg:       cfg,
		store:     st,
		inf:       inf,
		ocr:       extractor,
		analyzer:  schema.NewAnalyzer(inf, cfg.Pipeline.SampleRows),
		cascade:   mapping.NewCascade(cfg.Mapping.FuzzyThreshold, matcherClient),
		aliases:   aliases,
		validator: validate.NewEngine(),
		deduper: dedup.NewEngine(
			cfg.Dedup.AutoMergeThreshold,
			cfg.Dedup.ArbitrationThreshold,
			model.MergeStrategy(cfg.Dedup.MergeStrategy),
			arbiter,
		),
		opts: opts,
		retry: resilience.FromConfig(
			cfg.Pipeline.RetryMaxAttempts,
			cfg.Pipeline.RetryBackoffMs,
			cfg.Pipeline.RetryMaxBackoffMs,
		),
		progress: progress,
	}, nil
}

// Result is the outcome of one batch run.
type Result struct {
	TenantID string
	Items    []model.Item // deduplicated, validation-accepted items
	Excluded []model.Item // items with validation errors
	Groups   []model.DuplicateGroup
	Report   *crossval.Report
	Warnings []string
	Duration time.Duration
}

// Run ingests a batch of documents for one tenant. Per-document failures
// are isolated; dedup and cross-item validation run over the joined output.
// Steering is the session learning summary, empty outside review replays.
func (p *Pipeline) Run(ctx context.Context, tenantID string, docs []Document, steering string) (*Result, error) {
	if len(docs) == 0 {
		return nil, eris.New("pipeline: no documents")
	}
	start := time.Now()
	log := zap.L().With(zap.String("tenant", tenantID), zap.Int("documents", len(docs)))
	log.Info("pipeline: starting batch")

	perDoc := make([][]model.Item, len(docs))
	warnings := make([]string, 0)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent())

	var mu sync.Mutex
	for i, doc := range docs {
		g.Go(func() error {
			items, err := p.ingestDocument(gCtx, tenantID, doc, steering)
			if err != nil {
				p.emit(Event{Document: doc.Name, Stage: StageFailed, Err: err})
				log.Warn("pipeline: document failed",
					zap.String("document", doc.Name),
					zap.String("error_type", resilience.ClassifyError(err)),
					zap.Error(err))
				p.enqueueFailure(gCtx, tenantID, doc, err)
				mu.Lock()
				warnings = append(warnings, doc.Name+": "+err.Error())
				mu.Unlock()
				return nil
			}
			perDoc[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: batch cancelled")
	}

	var joined []model.Item
	for _, items := range perDoc {
		joined = append(joined, items...)
	}

	// Validation partitions before dedup so broken rows never merge into
	// clean ones.
	p.emit(Event{Stage: StageValidate, Items: len(joined)})
	accepted, excluded := p.validator.ValidateAll(joined)

	p.emit(Event{Stage: StageDedup, Items: len(accepted)})
	dedupResult := p.deduper.Run(ctx, accepted)

	unique := dedupResult.Unique
	for _, group := range dedupResult.Groups {
		unique = append(unique, group.Canonical)
	}

	existing, err := p.existingItems(ctx, tenantID)
	if err != nil {
		log.Warn("pipeline: listing existing items failed, skipping cross-document check", zap.Error(err))
	}
	p.emit(Event{Stage: StageCrossVal, Items: len(unique)})
	report := crossval.Validate(unique, existing)

	log.Info("pipeline: batch complete",
		zap.Int("items", len(unique)),
		zap.Int("excluded", len(excluded)),
		zap.Int("duplicate_groups", len(dedupResult.Groups)),
		zap.Int("inconsistencies", len(report.Inconsistencies)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Result{
		TenantID: tenantID,
		Items:    unique,
		Excluded: excluded,
		Groups:   dedupResult.Groups,
		Report:   report,
		Warnings: warnings,
		Duration: time.Since(start),
	}, nil
}

func (p *Pipeline) maxConcurrent() int {
	if p.cfg.Pipeline.MaxConcurrentDocs > 0 {
		return p.cfg.Pipeline.MaxConcurrentDocs
	}
	return 4
}

// existingItems loads the tenant's accepted catalog for cross-document
// duplicate checks. A nil store (library use) yields none.
func (p *Pipeline) existingItems(ctx context.Context, tenantID string) ([]model.Item, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.ListItems(ctx, store.ItemFilter{TenantID: tenantID, Limit: 1000})
}

// enqueueFailure records a failed document on the review queue so an
// operator can retry or discard it, and parks a dead-letter entry with
// the failed stage and error class for later replay.
func (p *Pipeline) enqueueFailure(ctx context.Context, tenantID string, doc Document, cause error) {
	if p.store == nil {
		return
	}

	now := time.Now().UTC()
	dead := &resilience.DLQEntry{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Document:     doc.Name,
		Checksum:     doc.Checksum(),
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		FailedStage:  string(failedStage(cause)),
		MaxRetries:   3,
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if dead.ErrorType == "transient" {
		dead.NextRetryAt = now.Add(5 * time.Minute)
	}
	if err := p.store.SaveDeadLetter(ctx, dead); err != nil {
		zap.L().Warn("pipeline: save dead letter", zap.String("document", doc.Name), zap.Error(err))
	}

	entry := &model.ReviewQueueItem{
		TenantID: tenantID,
		Reason:   reviewReasonFailed + ": " + cause.Error(),
		Item: model.Item{
			TenantID: tenantID,
			Source:   model.SourceLocation{Document: doc.Name},
		},
	}
	if err := p.store.EnqueueReview(ctx, entry); err != nil {
		zap.L().Warn("pipeline: enqueue failed document", zap.String("document", doc.Name), zap.Error(err))
	}
}

// matchedTemplate finds the best stored template for the document shape.
func (p *Pipeline) matchedTemplate(ctx context.Context, tenantID string, headers []string, filename string) *model.ExtractionTemplate {
	if p.store == nil {
		return nil
	}
	templates, err := p.store.ListTemplates(ctx, tenantID)
	if err != nil {
		zap.L().Warn("pipeline: list templates", zap.Error(err))
		return nil
	}
	tpl, score := learn.MatchTemplate(templates, headers, filename)
	if tpl != nil {
		zap.L().Debug("pipeline: template matched",
			zap.String("template", tpl.Name),
			zap.Float64("score", score))
	}
	return tpl
}
