// Package learn matches documents against stored extraction templates and
// converts completed-session corrections into template updates and
// confidence recalibration.
package learn

import (
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// Score weights for template matching.
const (
	columnPatternWeight = 0.50
	headerKeywordWeight = 0.30
	filenameWeight      = 0.20
)

// MatchThreshold is the minimum score for a template to apply.
const MatchThreshold = 0.7

// MatchTemplate scores every candidate template against the document's
// headers and filename and returns the best one at or above the threshold.
func MatchTemplate(templates []*model.ExtractionTemplate, headers []string, filename string) (*model.ExtractionTemplate, float64) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = textmatch.Normalize(h)
	}

	var best *model.ExtractionTemplate
	var bestScore float64
	for _, tpl := range templates {
		score := templateScore(&tpl.Signature, normalized, filename)
		if score > bestScore {
			best, bestScore = tpl, score
		}
	}
	if best == nil || bestScore < MatchThreshold {
		return nil, bestScore
	}
	zap.L().Debug("learn: template matched",
		zap.String("template", best.ID),
		zap.Float64("score", bestScore),
	)
	return best, bestScore
}

func templateScore(sig *model.TemplateSignature, headers []string, filename string) float64 {
	var score float64
	if len(sig.ColumnPatterns) > 0 {
		score += columnPatternWeight * patternOverlap(sig.ColumnPatterns, headers)
	}
	if len(sig.HeaderKeywords) > 0 {
		score += headerKeywordWeight * keywordOverlap(sig.HeaderKeywords, headers)
	}
	if sig.FilenamePattern != "" {
		if re, err := regexp.Compile(sig.FilenamePattern); err == nil && re.MatchString(filename) {
			score += filenameWeight
		}
	}
	return score
}

// patternOverlap is the fraction of column patterns matching at least one
// header.
func patternOverlap(patterns, headers []string) float64 {
	var hits int
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		for _, h := range headers {
			if re.MatchString(h) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(patterns))
}

// keywordOverlap is the fraction of keywords appearing in some header.
func keywordOverlap(keywords, headers []string) float64 {
	var hits int
	for _, kw := range keywords {
		for _, h := range headers {
			if textmatch.ContainmentRatio(kw, h) == 1 {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(keywords))
}

// BuildSignature derives a template signature from resolved headers and a
// filename. Column patterns anchor each normalized header exactly.
func BuildSignature(headers []string, filenamePattern string) model.TemplateSignature {
	sig := model.TemplateSignature{FilenamePattern: filenamePattern}
	seen := map[string]bool{}
	for _, h := range headers {
		n := textmatch.Normalize(h)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		sig.ColumnPatterns = append(sig.ColumnPatterns, "^"+regexp.QuoteMeta(n)+"$")
		sig.HeaderKeywords = append(sig.HeaderKeywords, n)
	}
	sort.Strings(sig.ColumnPatterns)
	sort.Strings(sig.HeaderKeywords)
	return sig
}
