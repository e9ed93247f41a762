package model

import "time"

// ReviewQueueItem parks an item that needs asynchronous human attention
// outside a live session: excluded items, ambiguous duplicate groups,
// cross-batch findings.
type ReviewQueueItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason"`
	Item     Item   `json:"item"`
	// Resolved marks queue entries a reviewer has dealt with.
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestionCache memoizes the pipeline result for a document checksum so
// re-uploads of identical files skip extraction.
type IngestionCache struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Checksum string `json:"checksum"`
	Items    []Item `json:"items"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
