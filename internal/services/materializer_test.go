package services

import (
	"context"
	"testing"

	"taskharvest/internal/models"
	"taskharvest/internal/storage"
)

func TestMaterializeProvenance(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewMaterializer(store)
	ctx := context.Background()

	item := models.RawItem{
		Source:      models.SourceChat,
		ID:          "C1:1767225600.000100",
		ChannelID:   "C1",
		ChannelName: "eng-infra",
		Sender:      "U123",
	}
	candidates := []models.ExtractionCandidate{
		{Title: "Deploy the fix", Type: models.TypeQuickWin, Priority: 4},
		{Title: "  ", Priority: 2}, // blank titles are dropped
	}

	created, err := m.Materialize(ctx, "u1", models.SourceChat, item, candidates)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d tasks, want 1", len(created))
	}

	task := created[0]
	if task.Status != models.StatusTodo {
		t.Errorf("Status = %q, want todo", task.Status)
	}
	if task.Source != models.SourceChat {
		t.Errorf("Source = %q, want chat", task.Source)
	}
	if task.Metadata[models.MetaSourceItemID] != item.ID {
		t.Errorf("sourceItemId = %q, want %q", task.Metadata[models.MetaSourceItemID], item.ID)
	}
	if task.Metadata[models.MetaChannelName] != "eng-infra" {
		t.Errorf("channelName = %q", task.Metadata[models.MetaChannelName])
	}
	if task.Metadata[models.MetaSender] != "U123" {
		t.Errorf("sender = %q", task.Metadata[models.MetaSender])
	}
	if task.ID == "" {
		t.Error("task has no id")
	}

	// Persisted tasks are findable by their provenance.
	found, _ := store.FindTasksBySourceItem(ctx, "u1", models.SourceChat, item.ID)
	if len(found) != 1 {
		t.Errorf("FindTasksBySourceItem = %d results, want 1", len(found))
	}
}

func TestMaterializeReclamps(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewMaterializer(store)

	item := models.RawItem{Source: models.SourceWiki, ID: "page-1", Title: "Ops runbook"}
	candidates := []models.ExtractionCandidate{
		{Title: "Do the thing", Type: models.TaskType("made-up"), Priority: 42, DurationMinutes: -10},
	}

	created, err := m.Materialize(context.Background(), "u1", models.SourceWiki, item, candidates)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	task := created[0]
	if task.Type != models.TypeCustom {
		t.Errorf("Type = %q, want custom", task.Type)
	}
	if task.Priority != 5 {
		t.Errorf("Priority = %d, want 5", task.Priority)
	}
	if task.DurationMinutes != 30 {
		t.Errorf("DurationMinutes = %d, want 30", task.DurationMinutes)
	}
	if task.Metadata[models.MetaPageTitle] != "Ops runbook" {
		t.Errorf("pageTitle = %q", task.Metadata[models.MetaPageTitle])
	}
}

func TestMaterializeMultipleCandidatesOneItem(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewMaterializer(store)

	item := models.RawItem{Source: models.SourceMeeting, ID: "tr-1", Title: "Planning"}
	candidates := []models.ExtractionCandidate{
		{Title: "First action", Priority: 3},
		{Title: "Second action", Priority: 2},
		{Title: "Third action", Priority: 1},
	}

	created, err := m.Materialize(context.Background(), "u1", models.SourceMeeting, item, candidates)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created = %d, want 3: one item can yield several tasks", len(created))
	}

	ids := map[string]bool{}
	for _, task := range created {
		ids[task.ID] = true
		if task.Metadata[models.MetaSourceItemID] != "tr-1" {
			t.Errorf("task %s lost provenance", task.ID)
		}
	}
	if len(ids) != 3 {
		t.Error("duplicate task ids")
	}
}
