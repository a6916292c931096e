package services

import (
	"context"
	"strings"
	"time"

	"taskharvest/internal/models"
	"taskharvest/internal/storage"
	"taskharvest/internal/utils"
)

// Materializer validates candidates and writes them as durable tasks with
// source provenance attached. The caller has already confirmed via the
// processed-item guard that the source item was not handled before; the
// materializer does not re-query per candidate, because multiple
// candidates from one item are expected and are not duplicates of each
// other.
type Materializer struct {
	store storage.Store
}

// NewMaterializer creates a materializer on top of store.
func NewMaterializer(store storage.Store) *Materializer {
	return &Materializer{store: store}
}

// Materialize persists one item's candidates. Fields are re-validated and
// re-clamped here; the extraction layer's validation is not trusted as
// the only gate. Returns the tasks created so far even on error.
func (m *Materializer) Materialize(ctx context.Context, userID string, source models.TaskSource, item models.RawItem, candidates []models.ExtractionCandidate) ([]models.Task, error) {
	now := time.Now().UTC()
	created := make([]models.Task, 0, len(candidates))

	for _, candidate := range candidates {
		title := strings.TrimSpace(candidate.Title)
		if title == "" {
			continue
		}
		taskType := candidate.Type
		if !models.KnownTaskType(string(taskType)) {
			taskType = models.TypeCustom
		}
		duration := candidate.DurationMinutes
		if duration < 0 {
			duration = 30
		}

		task := models.Task{
			ID:              utils.GenerateUUID(),
			UserID:          userID,
			Title:           title,
			Description:     candidate.Description,
			Tags:            candidate.Tags,
			Type:            taskType,
			Priority:        ClampPriority(candidate.Priority),
			Status:          models.StatusTodo,
			DueDate:         candidate.DueDate,
			ScheduledTime:   candidate.ScheduledTime,
			DurationMinutes: duration,
			Source:          source,
			Metadata:        provenance(item),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := m.store.InsertTask(ctx, &task); err != nil {
			return created, err
		}
		created = append(created, task)
	}
	return created, nil
}

// provenance builds the metadata map used for deduplication and for
// round-tripping to the origin UI.
func provenance(item models.RawItem) map[string]string {
	meta := map[string]string{
		models.MetaSourceItemID: item.ID,
	}
	switch item.Source {
	case models.SourceMailbox:
		if item.Thread != "" {
			meta[models.MetaThreadID] = item.Thread
		}
		if item.From != "" {
			meta[models.MetaSender] = item.From
		}
	case models.SourceChat:
		if item.ChannelID != "" {
			meta[models.MetaChannelID] = item.ChannelID
		}
		if item.ChannelName != "" {
			meta[models.MetaChannelName] = item.ChannelName
		}
		if item.Sender != "" {
			meta[models.MetaSender] = item.Sender
		}
	case models.SourceWiki:
		meta[models.MetaPageID] = item.ID
		if item.Title != "" {
			meta[models.MetaPageTitle] = item.Title
		}
	case models.SourceMeeting:
		if item.Title != "" {
			meta[models.MetaMeetingTitle] = item.Title
		}
	case models.SourceCalendar:
		meta[models.MetaEventID] = item.ID
	}
	for k, v := range item.Metadata {
		if v != "" {
			meta[k] = v
		}
	}
	return meta
}
