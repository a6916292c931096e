package models

import "time"

// SyncCursor marks how far a user's sync has progressed in one source.
// Position is an opaque string whose ordering is defined by the source
// adapter that produces it; all adapters emit positions that compare
// correctly as plain strings (zero-padded epoch values or UTC RFC3339).
type SyncCursor struct {
	UserID        string     `bson:"userId" json:"userId"`
	Source        TaskSource `bson:"source" json:"source"`
	Position      string     `bson:"position" json:"position"`
	LastSyncAt    time.Time  `bson:"lastSyncAt" json:"lastSyncAt"`
	LastBatchSize int        `bson:"lastBatchSize" json:"lastBatchSize"`
}

// ProcessedItem is the append-only record proving a source item was already
// evaluated, whether or not it produced tasks. It is the authoritative
// duplicate guard; the cursor is only a fetch-window optimization.
type ProcessedItem struct {
	UserID       string     `bson:"userId" json:"userId"`
	Source       TaskSource `bson:"source" json:"source"`
	SourceItemID string     `bson:"sourceItemId" json:"sourceItemId"`
	ProcessedAt  time.Time  `bson:"processedAt" json:"processedAt"`
	TaskIDs      []string   `bson:"taskIds,omitempty" json:"taskIds,omitempty"`
}

// BatchFailure describes one soft-failed item in a batch.
type BatchFailure struct {
	ItemID string `json:"itemId"`
	Reason string `json:"reason"`
}

// BatchResult summarizes one runBatch invocation. Soft per-item failures
// are aggregated here and do not turn the batch into an error.
type BatchResult struct {
	UserID       string         `json:"userId"`
	Source       TaskSource     `json:"source"`
	ItemsSeen    int            `json:"itemsSeen"`
	ItemsSkipped int            `json:"itemsSkipped"`
	TasksCreated int            `json:"tasksCreated"`
	Failures     []BatchFailure `json:"failures"`
}
