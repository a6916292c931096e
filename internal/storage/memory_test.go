package storage

import (
	"context"
	"testing"

	"taskharvest/internal/models"
)

func TestAdvanceCursorMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.AdvanceCursor(ctx, "u1", models.SourceMailbox, "0000000000001000", 5); err != nil {
		t.Fatalf("AdvanceCursor failed: %v", err)
	}
	cursor, err := store.GetCursor(ctx, "u1", models.SourceMailbox)
	if err != nil {
		t.Fatalf("GetCursor failed: %v", err)
	}
	if cursor == nil || cursor.Position != "0000000000001000" {
		t.Fatalf("cursor = %+v, want position 0000000000001000", cursor)
	}
	if cursor.LastBatchSize != 5 {
		t.Errorf("LastBatchSize = %d, want 5", cursor.LastBatchSize)
	}

	// A smaller position keeps the stored one but still updates batch stats.
	if err := store.AdvanceCursor(ctx, "u1", models.SourceMailbox, "0000000000000500", 2); err != nil {
		t.Fatalf("AdvanceCursor failed: %v", err)
	}
	cursor, _ = store.GetCursor(ctx, "u1", models.SourceMailbox)
	if cursor.Position != "0000000000001000" {
		t.Errorf("position regressed to %q", cursor.Position)
	}
	if cursor.LastBatchSize != 2 {
		t.Errorf("LastBatchSize = %d, want 2", cursor.LastBatchSize)
	}

	// A larger position moves it forward.
	if err := store.AdvanceCursor(ctx, "u1", models.SourceMailbox, "0000000000002000", 1); err != nil {
		t.Fatalf("AdvanceCursor failed: %v", err)
	}
	cursor, _ = store.GetCursor(ctx, "u1", models.SourceMailbox)
	if cursor.Position != "0000000000002000" {
		t.Errorf("position = %q, want 0000000000002000", cursor.Position)
	}
}

func TestGetCursorNeverSynced(t *testing.T) {
	store := NewMemoryStore()
	cursor, err := store.GetCursor(context.Background(), "nobody", models.SourceChat)
	if err != nil {
		t.Fatalf("GetCursor failed: %v", err)
	}
	if cursor != nil {
		t.Errorf("cursor = %+v, want nil for never-synced user", cursor)
	}
}

func TestCursorsIsolatedPerSource(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.AdvanceCursor(ctx, "u1", models.SourceMailbox, "aaa", 1); err != nil {
		t.Fatal(err)
	}
	if err := store.AdvanceCursor(ctx, "u1", models.SourceChat, "bbb", 1); err != nil {
		t.Fatal(err)
	}

	mailbox, _ := store.GetCursor(ctx, "u1", models.SourceMailbox)
	chat, _ := store.GetCursor(ctx, "u1", models.SourceChat)
	if mailbox.Position != "aaa" || chat.Position != "bbb" {
		t.Errorf("cursors bled across sources: mailbox=%q chat=%q", mailbox.Position, chat.Position)
	}
}

func TestMarkProcessedFirstWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &models.ProcessedItem{
		UserID:       "u1",
		Source:       models.SourceWiki,
		SourceItemID: "page-1",
		TaskIDs:      []string{"t1", "t2"},
	}
	if err := store.MarkProcessed(ctx, first); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	second := &models.ProcessedItem{
		UserID:       "u1",
		Source:       models.SourceWiki,
		SourceItemID: "page-1",
		TaskIDs:      []string{"t3"},
	}
	if err := store.MarkProcessed(ctx, second); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	record, err := store.IsProcessed(ctx, "u1", models.SourceWiki, "page-1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if record == nil {
		t.Fatal("IsProcessed = nil, want record")
	}
	if len(record.TaskIDs) != 2 || record.TaskIDs[0] != "t1" {
		t.Errorf("record.TaskIDs = %v, want first write's [t1 t2]", record.TaskIDs)
	}
}

func TestIsProcessedUnknownItem(t *testing.T) {
	store := NewMemoryStore()
	record, err := store.IsProcessed(context.Background(), "u1", models.SourceChat, "missing")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if record != nil {
		t.Errorf("record = %+v, want nil", record)
	}
}

func TestListOpenTasks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	tasks := []models.Task{
		{ID: "t1", UserID: "u1", Title: "open todo", Status: models.StatusTodo},
		{ID: "t2", UserID: "u1", Title: "in progress", Status: models.StatusInProgress},
		{ID: "t3", UserID: "u1", Title: "finished", Status: models.StatusDone},
		{ID: "t4", UserID: "u1", Title: "dropped", Status: models.StatusCancelled},
	}
	for i := range tasks {
		if err := store.InsertTask(ctx, &tasks[i]); err != nil {
			t.Fatalf("InsertTask failed: %v", err)
		}
	}

	open, err := store.ListOpenTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("ListOpenTasks failed: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("len(open) = %d, want 2", len(open))
	}
	for _, task := range open {
		if !task.Open() {
			t.Errorf("task %s is not open", task.ID)
		}
	}
}

func TestFindTasksBySourceItem(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.InsertTask(ctx, &models.Task{
		ID:       "t1",
		UserID:   "u1",
		Title:    "from email",
		Source:   models.SourceMailbox,
		Metadata: map[string]string{models.MetaSourceItemID: "msg-9"},
	}); err != nil {
		t.Fatal(err)
	}

	found, err := store.FindTasksBySourceItem(ctx, "u1", models.SourceMailbox, "msg-9")
	if err != nil {
		t.Fatalf("FindTasksBySourceItem failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != "t1" {
		t.Errorf("found = %v, want [t1]", found)
	}

	none, _ := store.FindTasksBySourceItem(ctx, "u1", models.SourceChat, "msg-9")
	if len(none) != 0 {
		t.Errorf("expected no matches for different source, got %v", none)
	}
}

func TestSetTaskMetadata(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.InsertTask(ctx, &models.Task{ID: "t1", UserID: "u1", Title: "scheduled"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetTaskMetadata(ctx, "t1", models.MetaPushedEvent, "ev-42"); err != nil {
		t.Fatalf("SetTaskMetadata failed: %v", err)
	}

	tasks, _ := store.ListTasks(ctx, "u1")
	if tasks[0].Metadata[models.MetaPushedEvent] != "ev-42" {
		t.Errorf("metadata = %v, want pushedEventId=ev-42", tasks[0].Metadata)
	}

	if err := store.SetTaskMetadata(ctx, "missing", "k", "v"); err == nil {
		t.Error("expected error for unknown task id")
	}
}
