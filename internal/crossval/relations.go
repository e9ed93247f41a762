// Package crossval derives relationships between items of a batch and
// checks batch-wide consistency rules: dependency date order, budget
// rollups, owner capacity and circular dependencies.
package crossval

import (
	"strings"

	"github.com/stacklens/catalog-ingest/internal/model"
	"github.com/stacklens/catalog-ingest/pkg/textmatch"
)

// relationCue maps a keyword phrase found in description or notes text to
// a relation type. German equivalents sit next to their English cues.
var relationCues = []struct {
	phrase string
	typ    model.RelationType
}{
	{"depends on", model.RelationDependsOn},
	{"requires", model.RelationDependsOn},
	{"needs", model.RelationDependsOn},
	{"benotigt", model.RelationDependsOn},
	{"setzt voraus", model.RelationDependsOn},
	{"blocks", model.RelationBlocks},
	{"blockiert", model.RelationBlocks},
	{"part of", model.RelationPartOf},
	{"teil von", model.RelationPartOf},
	{"gehort zu", model.RelationPartOf},
	{"replaces", model.RelationSupersedes},
	{"supersedes", model.RelationSupersedes},
	{"ersetzt", model.RelationSupersedes},
	{"related to", model.RelationRelatedTo},
	{"see also", model.RelationRelatedTo},
	{"siehe", model.RelationRelatedTo},
}

// DeriveRelationships scans free-text fields of every item for cue phrases
// followed by another item's name, plus bare name references. A cue-based
// hit is high confidence; a bare name mention is a weak related_to link.
func DeriveRelationships(items []model.Item) []model.Relationship {
	type entry struct {
		id   string
		name string // normalized
	}
	index := make([]entry, 0, len(items))
	for i := range items {
		name := textmatch.Normalize(items[i].StringValue(model.FieldName))
		if name == "" {
			continue
		}
		index = append(index, entry{id: items[i].ID, name: name})
	}

	var rels []model.Relationship
	seen := map[string]bool{}
	add := func(r model.Relationship) {
		key := r.SourceID + "|" + r.TargetID + "|" + string(r.Type)
		if r.SourceID == r.TargetID || seen[key] {
			return
		}
		seen[key] = true
		rels = append(rels, r)
	}

	for i := range items {
		text := textmatch.Normalize(items[i].StringValue(model.FieldDescription) + " " + items[i].StringValue(model.FieldNotes))
		if text == "" {
			continue
		}

		for _, other := range index {
			if other.id == items[i].ID {
				continue
			}
			pos := strings.Index(text, other.name)
			if pos < 0 {
				continue
			}

			if typ, ok := cueBefore(text[:pos]); ok {
				add(model.Relationship{
					SourceID:   items[i].ID,
					TargetID:   other.id,
					Type:       typ,
					Confidence: 0.8,
					Evidence:   other.name,
				})
				continue
			}
			add(model.Relationship{
				SourceID:   items[i].ID,
				TargetID:   other.id,
				Type:       model.RelationRelatedTo,
				Confidence: 0.4,
				Evidence:   other.name,
			})
		}
	}

	rels = append(rels, hierarchyRelationships(items)...)
	return rels
}

// cueBefore checks whether a cue phrase ends within the tail of the text
// preceding a name mention.
func cueBefore(prefix string) (model.RelationType, bool) {
	tail := prefix
	if len(tail) > 40 {
		tail = tail[len(tail)-40:]
	}
	for _, cue := range relationCues {
		idx := strings.LastIndex(tail, cue.phrase)
		if idx < 0 {
			continue
		}
		// The cue must sit directly before the mention, allowing a few
		// filler characters ("requires the ...").
		if len(tail)-(idx+len(cue.phrase)) <= 8 {
			return cue.typ, true
		}
	}
	return "", false
}

// hierarchyRelationships links items to a same-category item whose name
// prefixes theirs ("Office Suite" -> "Office Suite Premium").
func hierarchyRelationships(items []model.Item) []model.Relationship {
	var rels []model.Relationship
	for i := range items {
		nameI := textmatch.Normalize(items[i].StringValue(model.FieldName))
		catI := items[i].StringValue(model.FieldCategory)
		if nameI == "" {
			continue
		}
		for j := range items {
			if i == j || catI == "" || catI != items[j].StringValue(model.FieldCategory) {
				continue
			}
			nameJ := textmatch.Normalize(items[j].StringValue(model.FieldName))
			if nameJ == "" || nameI == nameJ {
				continue
			}
			if strings.HasPrefix(nameI, nameJ+" ") {
				rels = append(rels, model.Relationship{
					SourceID:   items[i].ID,
					TargetID:   items[j].ID,
					Type:       model.RelationPartOf,
					Confidence: 0.5,
					Evidence:   nameJ,
				})
			}
		}
	}
	return rels
}
