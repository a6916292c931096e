package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskharvest/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// Mongo-less local runs; semantics match the Mongo implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string][]*models.Task // userID -> tasks
	cursors   map[string]*models.SyncCursor
	processed map[string]*models.ProcessedItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string][]*models.Task),
		cursors:   make(map[string]*models.SyncCursor),
		processed: make(map[string]*models.ProcessedItem),
	}
}

func cursorKey(userID string, source models.TaskSource) string {
	return userID + ":" + string(source)
}

func processedKey(userID string, source models.TaskSource, itemID string) string {
	return userID + ":" + string(source) + ":" + itemID
}

// InsertTask stores a new task.
func (s *MemoryStore) InsertTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	copied := *task
	s.tasks[task.UserID] = append(s.tasks[task.UserID], &copied)
	return nil
}

// ListTasks returns all tasks for a user.
func (s *MemoryStore) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.tasks[userID]))
	for _, t := range s.tasks[userID] {
		out = append(out, *t)
	}
	return out, nil
}

// ListOpenTasks returns tasks that are neither done nor cancelled.
func (s *MemoryStore) ListOpenTasks(ctx context.Context, userID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, t := range s.tasks[userID] {
		if t.Open() {
			out = append(out, *t)
		}
	}
	return out, nil
}

// FindTasksBySourceItem returns tasks created from one source item.
func (s *MemoryStore) FindTasksBySourceItem(ctx context.Context, userID string, source models.TaskSource, sourceItemID string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, t := range s.tasks[userID] {
		if t.Source == source && t.SourceItemID() == sourceItemID {
			out = append(out, *t)
		}
	}
	return out, nil
}

// SetTaskMetadata sets one metadata key on a task.
func (s *MemoryStore) SetTaskMetadata(ctx context.Context, taskID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tasks := range s.tasks {
		for _, t := range tasks {
			if t.ID == taskID {
				if t.Metadata == nil {
					t.Metadata = make(map[string]string)
				}
				t.Metadata[key] = value
				t.UpdatedAt = time.Now().UTC()
				return nil
			}
		}
	}
	return fmt.Errorf("task not found: %s", taskID)
}

// GetCursor returns the stored cursor, or nil if the user+source has
// never completed a batch.
func (s *MemoryStore) GetCursor(ctx context.Context, userID string, source models.TaskSource) (*models.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, exists := s.cursors[cursorKey(userID, source)]
	if !exists {
		return nil, nil
	}
	copied := *cursor
	return &copied, nil
}

// AdvanceCursor records a batch. The position only moves forward; a
// smaller position keeps the stored one but the sync stats still update.
func (s *MemoryStore) AdvanceCursor(ctx context.Context, userID string, source models.TaskSource, position string, batchSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cursorKey(userID, source)
	cursor, exists := s.cursors[key]
	if !exists {
		s.cursors[key] = &models.SyncCursor{
			UserID:        userID,
			Source:        source,
			Position:      position,
			LastSyncAt:    time.Now().UTC(),
			LastBatchSize: batchSize,
		}
		return nil
	}

	if position > cursor.Position {
		cursor.Position = position
	}
	cursor.LastSyncAt = time.Now().UTC()
	cursor.LastBatchSize = batchSize
	return nil
}

// IsProcessed returns the processed record for an item, or nil.
func (s *MemoryStore) IsProcessed(ctx context.Context, userID string, source models.TaskSource, sourceItemID string) (*models.ProcessedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.processed[processedKey(userID, source, sourceItemID)]
	if !exists {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// MarkProcessed records an item as evaluated. First write wins.
func (s *MemoryStore) MarkProcessed(ctx context.Context, record *models.ProcessedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := processedKey(record.UserID, record.Source, record.SourceItemID)
	if _, exists := s.processed[key]; exists {
		return nil
	}
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = time.Now().UTC()
	}
	copied := *record
	s.processed[key] = &copied
	return nil
}
