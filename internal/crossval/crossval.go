package crossval

import (
	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/dedup"
	"github.com/stacklens/catalog-ingest/internal/model"
)

// crossDocThreshold is the similarity above which a new item is reported
// as a duplicate of an already stored one.
const crossDocThreshold = 0.85

// Report is the batch-wide validation outcome.
type Report struct {
	Relationships   []model.Relationship  `json:"relationships"`
	Inconsistencies []model.Inconsistency `json:"inconsistencies"`
}

// Validate derives relationships over the batch and runs every
// cross-item rule. existing holds previously stored items for
// cross-document duplicate detection and may be empty.
func Validate(items []model.Item, existing []model.Item) *Report {
	rels := DeriveRelationships(items)

	report := &Report{Relationships: rels}
	report.Inconsistencies = append(report.Inconsistencies, DetectCycles(items, rels)...)
	report.Inconsistencies = append(report.Inconsistencies, CheckDependencyDates(items, rels)...)
	report.Inconsistencies = append(report.Inconsistencies, CheckBudgetRollup(items, rels)...)
	report.Inconsistencies = append(report.Inconsistencies, CheckOwnerCapacity(items)...)
	report.Inconsistencies = append(report.Inconsistencies, CheckCrossDocument(items, existing)...)

	zap.L().Debug("crossval: batch validated",
		zap.Int("items", len(items)),
		zap.Int("relationships", len(report.Relationships)),
		zap.Int("inconsistencies", len(report.Inconsistencies)),
	)
	return report
}

// CheckCrossDocument compares the batch against previously stored items
// with the same similarity model the deduplicator uses.
func CheckCrossDocument(items, existing []model.Item) []model.Inconsistency {
	var findings []model.Inconsistency
	for i := range items {
		for j := range existing {
			sim := dedup.Similarity(&items[i], &existing[j])
			if sim < crossDocThreshold {
				continue
			}
			findings = append(findings, model.Inconsistency{
				Rule:     "cross_document_duplicate",
				Severity: model.SeverityWarning,
				ItemIDs:  []string{items[i].ID, existing[j].ID},
				Message:  "item duplicates a previously ingested item",
			})
			break
		}
	}
	return findings
}
