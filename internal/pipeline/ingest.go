package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/detect"
	"github.com/stacklens/catalog-ingest/internal/extract"
	"github.com/stacklens/catalog-ingest/internal/mapping"
	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/internal/resilience"
	"github.com/stacklens/catalog-ingest/internal/schema"
)

// ingestDocument runs the per-document flow: cache lookup, detection,
// reading, structure analysis, mapping and row extraction.
func (p *Pipeline) ingestDocument(ctx context.Context, tenantID string, doc Document, steering string) ([]model.Item, error) {
	checksum := doc.Checksum()
	if p.store != nil {
		cached, err := p.store.GetCachedIngestion(ctx, tenantID, checksum)
		if err != nil {
			zap.L().Warn("pipeline: ingestion cache lookup failed", zap.String("document", doc.Name), zap.Error(err))
		} else if cached != nil {
			p.emit(Event{Document: doc.Name, Stage: StageCached, Items: len(cached.Items)})
			return cached.Items, nil
		}
	}

	p.emit(Event{Document: doc.Name, Stage: StageDetect})
	det, err := detect.Detect(doc.Data, doc.Name)
	if err != nil {
		return nil, atStage(StageDetect, eris.Wrapf(err, "pipeline: detect %s", doc.Name))
	}

	tables, sections, err := p.readDocument(ctx, doc, *det)
	if err != nil {
		return nil, atStage(StageExtract, err)
	}
	if len(tables) == 0 {
		return nil, atStage(StageExtract, eris.Errorf("pipeline: no extractable structure in %s", doc.Name))
	}

	info := schema.DocumentInfo{
		Filename:  doc.Name,
		Tables:    len(tables),
		Sections:  sections,
		PageCount: det.PageCount,
	}

	var items []model.Item
	for _, table := range tables {
		extracted, err := p.extractTable(ctx, tenantID, doc, table, info, steering)
		if err != nil {
			return nil, err
		}
		items = append(items, extracted...)
	}
	p.emit(Event{Document: doc.Name, Stage: StageExtract, Items: len(items)})

	if p.store != nil {
		if err := p.store.SetCachedIngestion(ctx, tenantID, checksum, items, cacheTTL); err != nil {
			zap.L().Warn("pipeline: cache ingestion", zap.String("document", doc.Name), zap.Error(err))
		}
	}
	return items, nil
}

// extractTable maps and extracts one table of the document.
func (p *Pipeline) extractTable(ctx context.Context, tenantID string, doc Document, table *extract.Table, info schema.DocumentInfo, steering string) ([]model.Item, error) {
	p.emit(Event{Document: doc.Name, Stage: StageAnalyze})
	sch, err := p.analyzer.Analyze(ctx, schema.Table{
		Name:       table.Sheet,
		HeaderRows: table.HeaderRows,
		Rows:       table.Rows,
	}, info)
	if err != nil {
		return nil, atStage(StageAnalyze, eris.Wrapf(err, "pipeline: analyze %s", doc.Name))
	}

	headers := make([]string, len(sch.Columns))
	for i, col := range sch.Columns {
		headers[i] = col.SourceName
	}

	mctx := &mapping.Context{
		TenantID: tenantID,
		Template: p.matchedTemplate(ctx, tenantID, headers, doc.Name),
		Aliases:  p.aliases,
		Steering: steering,
	}
	p.emit(Event{Document: doc.Name, Stage: StageMap})
	result := p.cascade.Resolve(ctx, sch, mctx)
	if len(result.Mappings) == 0 {
		return nil, atStage(StageMap, eris.Errorf("pipeline: no columns mapped in %s", doc.Name))
	}

	extractor := extract.NewRowExtractor(tenantID, headers, result, sch.Strategy, p.opts)
	return extractor.Items(table, doc.Name), nil
}

// readDocument turns raw bytes into tables, routed by detected format.
// Sections is nonzero only for unstructured text paths.
func (p *Pipeline) readDocument(ctx context.Context, doc Document, det model.DetectedFormat) ([]*extract.Table, int, error) {
	switch det.Format {
	case model.FormatCSV:
		table, err := extract.ReadCSV(doc.Data, det)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "pipeline: read csv %s", doc.Name)
		}
		return []*extract.Table{table}, 0, nil

	case model.FormatXLSX:
		tables, err := extract.ReadXLSX(doc.Data)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "pipeline: read xlsx %s", doc.Name)
		}
		return tables, 0, nil

	case model.FormatJSON:
		_, table, err := extract.ReadJSON(doc.Data)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "pipeline: read json %s", doc.Name)
		}
		return []*extract.Table{table}, 0, nil

	case model.FormatXML:
		table, err := extract.ReadXML(doc.Data)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "pipeline: read xml %s", doc.Name)
		}
		return []*extract.Table{table}, 0, nil

	case model.FormatPDF, model.FormatImage:
		return p.readScanned(ctx, doc)

	case model.FormatText:
		return tablesFromText(doc.Data)

	default:
		return nil, 0, eris.Errorf("pipeline: unsupported format %q for %s", det.Format, doc.Name)
	}
}

// readScanned extracts text via OCR, with retries for transient failures,
// then runs the unstructured text path over the recognized content.
func (p *Pipeline) readScanned(ctx context.Context, doc Document) ([]*extract.Table, int, error) {
	if p.ocr == nil {
		return nil, 0, eris.Errorf("pipeline: no OCR extractor configured for %s", doc.Name)
	}

	retry := p.retry
	retry.OnRetry = resilience.RetryLogger("ocr")

	var text string
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		var ocrErr error
		text, ocrErr = p.ocr.ExtractText(ctx, doc.Data)
		return ocrErr
	})
	if err != nil {
		return nil, 0, eris.Wrapf(err, "pipeline: ocr %s", doc.Name)
	}
	return tablesFromText([]byte(text))
}

func tablesFromText(data []byte) ([]*extract.Table, int, error) {
	records, err := extract.ReadText(data)
	if err != nil {
		return nil, 0, eris.Wrap(err, "pipeline: read text")
	}
	sections := map[string]bool{}
	for _, rec := range records {
		if rec.Section != "" {
			sections[rec.Section] = true
		}
	}
	return []*extract.Table{extract.SectionTable(records)}, len(sections), nil
}
