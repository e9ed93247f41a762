package model

// RelationType classifies a derived relationship between two items.
type RelationType string

const (
	RelationDependsOn  RelationType = "depends_on"
	RelationBlocks     RelationType = "blocks"
	RelationRelatedTo  RelationType = "related_to"
	RelationPartOf     RelationType = "part_of"
	RelationSupersedes RelationType = "supersedes"
)

// Relationship links two items in a batch.
type Relationship struct {
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	Evidence   string       `json:"evidence,omitempty"`
}

// Inconsistency is a cross-item rule violation over the whole batch.
type Inconsistency struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	ItemIDs  []string `json:"item_ids"`
	Message  string   `json:"message"`
	// CyclePath holds the full id path for circular-dependency findings.
	CyclePath []string `json:"cycle_path,omitempty"`
}

// MergeStrategy picks how a duplicate group resolves to a canonical item.
type MergeStrategy string

const (
	MergeKeepMostComplete MergeStrategy = "keep_most_complete"
	MergeBestValue        MergeStrategy = "best_value"
)

// DuplicateGroup clusters near-duplicate items around a canonical member.
type DuplicateGroup struct {
	Canonical  Item          `json:"canonical"`
	Duplicates []Item        `json:"duplicates"`
	Similarity float64       `json:"similarity"`
	Strategy   MergeStrategy `json:"strategy"`
	// NeedsReview marks groups in the arbitration band that could not be
	// resolved automatically.
	NeedsReview bool `json:"needs_review,omitempty"`
}
