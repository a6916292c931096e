package storage

import (
	"context"

	"taskharvest/internal/models"
)

// Store is the durable-store contract the pipeline consumes. The pipeline
// does not rely on database-level unique indexes for correctness: cursor
// monotonicity and processed-item first-write-wins are part of this
// contract so any backing store behaves identically.
type Store interface {
	// Tasks.
	InsertTask(ctx context.Context, task *models.Task) error
	ListTasks(ctx context.Context, userID string) ([]models.Task, error)
	ListOpenTasks(ctx context.Context, userID string) ([]models.Task, error)
	FindTasksBySourceItem(ctx context.Context, userID string, source models.TaskSource, sourceItemID string) ([]models.Task, error)
	SetTaskMetadata(ctx context.Context, taskID, key, value string) error

	// Sync cursors. AdvanceCursor must be monotonic: a position smaller
	// than the stored one keeps the stored position but still records
	// lastSyncAt and lastBatchSize, so a zero-result or out-of-order
	// batch never regresses the cursor.
	GetCursor(ctx context.Context, userID string, source models.TaskSource) (*models.SyncCursor, error)
	AdvanceCursor(ctx context.Context, userID string, source models.TaskSource, position string, batchSize int) error

	// Processed items. MarkProcessed is first-write-wins; a second mark
	// for the same (user, source, item) is a no-op.
	IsProcessed(ctx context.Context, userID string, source models.TaskSource, sourceItemID string) (*models.ProcessedItem, error)
	MarkProcessed(ctx context.Context, record *models.ProcessedItem) error
}
