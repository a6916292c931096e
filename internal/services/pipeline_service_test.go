package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"taskharvest/internal/models"
	"taskharvest/internal/sources"
	"taskharvest/internal/storage"
)

// fakeAdapter serves a fixed item list without any network.
type fakeAdapter struct {
	source   models.TaskSource
	items    []models.RawItem
	listErr  error
	fetchErr map[string]error

	mu      sync.Mutex
	handled []string
}

func (f *fakeAdapter) Name() models.TaskSource        { return f.source }
func (f *fakeAdapter) DefaultLookback() time.Duration { return 24 * time.Hour }
func (f *fakeAdapter) PageSize() int                  { return 100 }

func (f *fakeAdapter) ListNewItems(ctx context.Context, auth sources.AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeAdapter) FetchDetail(ctx context.Context, auth sources.AuthContext, item models.RawItem) (models.RawItem, error) {
	if err := f.fetchErr[item.ID]; err != nil {
		return item, err
	}
	return item, nil
}

func (f *fakeAdapter) MarkHandled(ctx context.Context, auth sources.AuthContext, item models.RawItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, item.ID)
	return nil
}

// fakeExtractor maps body markers to canned outcomes and counts calls.
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, source models.TaskSource) ([]models.ExtractionCandidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if strings.Contains(text, "UNPARSEABLE") {
		return nil, ErrUnparseable
	}
	return []models.ExtractionCandidate{
		{Title: "Extracted from " + string(source), Priority: 3},
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func chatItem(id, position, body string) models.RawItem {
	return models.RawItem{
		Source:    models.SourceChat,
		ID:        id,
		Position:  position,
		ChannelID: "C1",
		Sender:    "U1",
		Body:      body,
	}
}

func newTestPipeline(store storage.Store, adapter sources.Adapter, extractor Extractor) *PipelineService {
	return NewPipelineService(store, extractor, NewMaterializer(store), []sources.Adapter{adapter}, 2, time.Second)
}

func TestRunBatchMixedOutcomes(t *testing.T) {
	store := storage.NewMemoryStore()
	adapter := &fakeAdapter{
		source: models.SourceChat,
		items: []models.RawItem{
			chatItem("C1:1", "1767225600.000100", "please review the doc"),
			chatItem("C1:2", "1767225600.000200", "ship the release"),
			chatItem("C1:3", "1767225600.000300", "UNPARSEABLE ramble"),
		},
	}
	extractor := &fakeExtractor{}
	pipeline := newTestPipeline(store, adapter, extractor)

	result, err := pipeline.RunBatch(context.Background(), "u1", models.SourceChat, models.SourceCredentials{Token: "tok"})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	if result.ItemsSeen != 3 {
		t.Errorf("ItemsSeen = %d, want 3", result.ItemsSeen)
	}
	if result.TasksCreated != 2 {
		t.Errorf("TasksCreated = %d, want 2", result.TasksCreated)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %+v, want exactly 1", result.Failures)
	}
	if result.Failures[0].ItemID != "C1:3" || result.Failures[0].Reason != "parse" {
		t.Errorf("failure = %+v, want C1:3/parse", result.Failures[0])
	}

	// The failed item holds the highest position; the cursor must stop at
	// the highest successful one so the failure is retried next batch.
	cursor, _ := store.GetCursor(context.Background(), "u1", models.SourceChat)
	if cursor == nil || cursor.Position != "1767225600.000200" {
		t.Errorf("cursor = %+v, want position 1767225600.000200", cursor)
	}

	tasks, _ := store.ListTasks(context.Background(), "u1")
	if len(tasks) != 2 {
		t.Fatalf("persisted tasks = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.Source != models.SourceChat {
			t.Errorf("task source = %q, want chat", task.Source)
		}
		if task.Metadata[models.MetaSourceItemID] == "" {
			t.Errorf("task %s has no source item provenance", task.ID)
		}
	}
}

func TestRunBatchCursorHeldByEarlierFailure(t *testing.T) {
	t.Run("advance capped below the failed position", func(t *testing.T) {
		store := storage.NewMemoryStore()
		adapter := &fakeAdapter{
			source: models.SourceChat,
			items: []models.RawItem{
				chatItem("C1:1", "1767225600.000100", "book the venue"),
				chatItem("C1:2", "1767225600.000200", "UNPARSEABLE ramble"),
				chatItem("C1:3", "1767225600.000300", "ship the release"),
			},
		}
		pipeline := newTestPipeline(store, adapter, &fakeExtractor{})

		result, err := pipeline.RunBatch(context.Background(), "u1", models.SourceChat, models.SourceCredentials{Token: "tok"})
		if err != nil {
			t.Fatalf("RunBatch failed: %v", err)
		}
		if result.TasksCreated != 2 || len(result.Failures) != 1 {
			t.Fatalf("result = %+v, want 2 created and 1 failure", result)
		}

		// The item above the failure succeeded, but the cursor must stop
		// below the failure so the failed item is refetched next batch.
		cursor, _ := store.GetCursor(context.Background(), "u1", models.SourceChat)
		if cursor == nil || cursor.Position != "1767225600.000100" {
			t.Errorf("cursor = %+v, want position 1767225600.000100", cursor)
		}
	})

	t.Run("lowest item failing holds the cursor entirely", func(t *testing.T) {
		store := storage.NewMemoryStore()
		adapter := &fakeAdapter{
			source: models.SourceChat,
			items: []models.RawItem{
				chatItem("C1:1", "1767225600.000100", "do the thing"),
				chatItem("C1:2", "1767225600.000200", "review PR"),
			},
			fetchErr: map[string]error{"C1:1": errors.New("timeout")},
		}
		pipeline := newTestPipeline(store, adapter, &fakeExtractor{})

		if _, err := pipeline.RunBatch(context.Background(), "u1", models.SourceChat, models.SourceCredentials{Token: "tok"}); err != nil {
			t.Fatalf("RunBatch failed: %v", err)
		}

		cursor, _ := store.GetCursor(context.Background(), "u1", models.SourceChat)
		if cursor != nil && cursor.Position >= "1767225600.000100" {
			t.Errorf("cursor position %q reached or passed the failed item", cursor.Position)
		}
	})
}

func TestRunBatchIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	adapter := &fakeAdapter{
		source: models.SourceChat,
		items: []models.RawItem{
			chatItem("C1:1", "1767225600.000100", "file the report"),
			chatItem("C1:2", "1767225600.000200", "book the venue"),
		},
	}
	extractor := &fakeExtractor{}
	pipeline := newTestPipeline(store, adapter, extractor)
	ctx := context.Background()
	creds := models.SourceCredentials{Token: "tok"}

	first, err := pipeline.RunBatch(ctx, "u1", models.SourceChat, creds)
	if err != nil {
		t.Fatalf("first RunBatch failed: %v", err)
	}
	if first.TasksCreated != 2 {
		t.Fatalf("first TasksCreated = %d, want 2", first.TasksCreated)
	}
	callsAfterFirst := extractor.callCount()

	second, err := pipeline.RunBatch(ctx, "u1", models.SourceChat, creds)
	if err != nil {
		t.Fatalf("second RunBatch failed: %v", err)
	}
	if second.TasksCreated != 0 {
		t.Errorf("second TasksCreated = %d, want 0", second.TasksCreated)
	}
	if second.ItemsSkipped != 2 {
		t.Errorf("second ItemsSkipped = %d, want 2", second.ItemsSkipped)
	}
	if extractor.callCount() != callsAfterFirst {
		t.Errorf("extractor called again for already-processed items")
	}

	tasks, _ := store.ListTasks(ctx, "u1")
	if len(tasks) != 2 {
		t.Errorf("tasks after rerun = %d, want still 2", len(tasks))
	}
}

func TestRunBatchAlreadyProcessedItem(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	if err := store.MarkProcessed(ctx, &models.ProcessedItem{
		UserID:       "u1",
		Source:       models.SourceWiki,
		SourceItemID: "page-1",
	}); err != nil {
		t.Fatal(err)
	}

	adapter := &fakeAdapter{
		source: models.SourceWiki,
		items: []models.RawItem{{
			Source:   models.SourceWiki,
			ID:       "page-1",
			Position: "2026-02-01T09:00:00Z",
			Title:    "Launch checklist",
			Blocks:   []models.Block{{Type: "to_do", Text: "ship it"}},
		}},
	}
	extractor := &fakeExtractor{}
	pipeline := newTestPipeline(store, adapter, extractor)

	result, err := pipeline.RunBatch(ctx, "u1", models.SourceWiki, models.SourceCredentials{Token: "tok"})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.ItemsSeen != 1 || result.ItemsSkipped != 1 || result.TasksCreated != 0 {
		t.Errorf("result = %+v, want seen:1 skipped:1 created:0", result)
	}
	if extractor.callCount() != 0 {
		t.Errorf("model called %d times for an already-processed item, want 0", extractor.callCount())
	}
}

func TestRunBatchNoAnalyzableContent(t *testing.T) {
	store := storage.NewMemoryStore()
	adapter := &fakeAdapter{
		source: models.SourceChat,
		items:  []models.RawItem{chatItem("C1:1", "1767225600.000100", "   ")},
	}
	extractor := &fakeExtractor{}
	pipeline := newTestPipeline(store, adapter, extractor)

	result, err := pipeline.RunBatch(context.Background(), "u1", models.SourceChat, models.SourceCredentials{Token: "tok"})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if result.ItemsSkipped != 1 || result.TasksCreated != 0 {
		t.Errorf("result = %+v, want 1 skipped and 0 created", result)
	}
	if extractor.callCount() != 0 {
		t.Errorf("extractor called for empty content")
	}

	// Skipped-empty items are recorded so they are never rescanned.
	record, _ := store.IsProcessed(context.Background(), "u1", models.SourceChat, "C1:1")
	if record == nil {
		t.Error("empty item was not marked processed")
	}
}

func TestRunBatchMissingToken(t *testing.T) {
	store := storage.NewMemoryStore()
	adapter := &fakeAdapter{source: models.SourceChat}
	pipeline := newTestPipeline(store, adapter, &fakeExtractor{})

	_, err := pipeline.RunBatch(context.Background(), "u1", models.SourceChat, models.SourceCredentials{})
	if !errors.Is(err, sources.ErrBadCredentials) {
		t.Errorf("err = %v, want ErrBadCredentials", err)
	}
}

func TestRunBatchListFailureLeavesCursor(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	if err := store.AdvanceCursor(ctx, "u1", models.SourceChat, "1767225600.000100", 1); err != nil {
		t.Fatal(err)
	}

	adapter := &fakeAdapter{source: models.SourceChat, listErr: errors.New("upstream down")}
	pipeline := newTestPipeline(store, adapter, &fakeExtractor{})

	if _, err := pipeline.RunBatch(ctx, "u1", models.SourceChat, models.SourceCredentials{Token: "tok"}); err == nil {
		t.Fatal("expected listing error")
	}

	cursor, _ := store.GetCursor(ctx, "u1", models.SourceChat)
	if cursor.Position != "1767225600.000100" {
		t.Errorf("cursor moved on failed listing: %q", cursor.Position)
	}
}

func TestRunBatchFetchFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	adapter := &fakeAdapter{
		source:   models.SourceChat,
		items:    []models.RawItem{chatItem("C1:1", "1767225600.000100", "do the thing")},
		fetchErr: map[string]error{"C1:1": errors.New("timeout")},
	}
	pipeline := newTestPipeline(store, adapter, &fakeExtractor{})

	result, err := pipeline.RunBatch(context.Background(), "u1", models.SourceChat, models.SourceCredentials{Token: "tok"})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].Reason != "fetch" {
		t.Errorf("Failures = %+v, want one fetch failure", result.Failures)
	}
}

func TestRunAllIsolatesSources(t *testing.T) {
	store := storage.NewMemoryStore()
	okAdapter := &fakeAdapter{
		source: models.SourceChat,
		items:  []models.RawItem{chatItem("C1:1", "1767225600.000100", "review PR")},
	}
	brokenAdapter := &fakeAdapter{
		source:  models.SourceWiki,
		listErr: errors.New("wiki unreachable"),
	}
	pipeline := NewPipelineService(
		store, &fakeExtractor{}, NewMaterializer(store),
		[]sources.Adapter{okAdapter, brokenAdapter}, 2, time.Second,
	)

	response := pipeline.RunAll(context.Background(), "u1", map[models.TaskSource]models.SourceCredentials{
		models.SourceChat: {Token: "tok"},
		models.SourceWiki: {Token: "tok"},
	})

	if len(response.Results) != 2 {
		t.Fatalf("Results = %d, want 2", len(response.Results))
	}
	bySource := map[models.TaskSource]models.SourceOutcome{}
	for _, outcome := range response.Results {
		bySource[outcome.Source] = outcome
	}
	if bySource[models.SourceChat].Error != "" || bySource[models.SourceChat].Result == nil {
		t.Errorf("chat outcome = %+v, want success", bySource[models.SourceChat])
	}
	if bySource[models.SourceWiki].Error == "" {
		t.Errorf("wiki outcome = %+v, want error", bySource[models.SourceWiki])
	}
}

func TestRunAllSkipsSourcesWithoutCredentials(t *testing.T) {
	store := storage.NewMemoryStore()
	adapter := &fakeAdapter{source: models.SourceChat}
	pipeline := newTestPipeline(store, adapter, &fakeExtractor{})

	response := pipeline.RunAll(context.Background(), "u1", map[models.TaskSource]models.SourceCredentials{})
	if len(response.Results) != 0 {
		t.Errorf("Results = %+v, want none without credentials", response.Results)
	}
}
