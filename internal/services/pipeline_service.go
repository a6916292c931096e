package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"taskharvest/internal/models"
	"taskharvest/internal/sources"
	"taskharvest/internal/storage"
)

// PipelineService orchestrates one source batch per call: cursor read →
// list → per-item fetch/normalize/extract/materialize → cursor advance.
// Per-item work runs on a bounded worker pool; item failures are soft and
// never halt sibling items, while credential or listing failures abort
// the batch with the cursor untouched.
type PipelineService struct {
	store        storage.Store
	extractor    Extractor
	materializer *Materializer
	adapters     map[models.TaskSource]sources.Adapter
	workers      int
	fetchTimeout time.Duration
}

// NewPipelineService wires the pipeline.
func NewPipelineService(
	store storage.Store,
	extractor Extractor,
	materializer *Materializer,
	adapters []sources.Adapter,
	workers int,
	fetchTimeout time.Duration,
) *PipelineService {
	byName := make(map[models.TaskSource]sources.Adapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}
	if workers < 1 {
		workers = 1
	}
	return &PipelineService{
		store:        store,
		extractor:    extractor,
		materializer: materializer,
		adapters:     byName,
		workers:      workers,
		fetchTimeout: fetchTimeout,
	}
}

// Sources lists the sources this pipeline can sync.
func (p *PipelineService) Sources() []models.TaskSource {
	out := make([]models.TaskSource, 0, len(p.adapters))
	for _, source := range models.SyncSources {
		if _, ok := p.adapters[source]; ok {
			out = append(out, source)
		}
	}
	return out
}

// itemOutcome is the terminal state of one item's pass through the
// pipeline state machine.
type itemOutcome struct {
	itemID   string
	position string
	skipped  bool
	tasks    int
	failure  string // empty on success
}

// RunBatch executes one user+source batch. Returned errors are
// fatal-for-batch only (bad credentials, source unreachable); soft
// per-item failures are aggregated in the result.
func (p *PipelineService) RunBatch(ctx context.Context, userID string, source models.TaskSource, creds models.SourceCredentials) (*models.BatchResult, error) {
	adapter, ok := p.adapters[source]
	if !ok {
		return nil, fmt.Errorf("unknown sync source: %s", source)
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: missing token", sources.ErrBadCredentials)
	}
	auth := sources.AuthContext{UserID: userID, Token: creds.Token}

	cursor, err := p.store.GetCursor(ctx, userID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync cursor: %w", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	items, err := adapter.ListNewItems(listCtx, auth, cursor)
	cancel()
	if err != nil {
		// Listing failures are fatal for this batch; the cursor stays put.
		return nil, fmt.Errorf("failed to list new items from %s: %w", source, err)
	}

	result := &models.BatchResult{
		UserID:    userID,
		Source:    source,
		ItemsSeen: len(items),
		Failures:  []models.BatchFailure{},
	}

	var (
		mu             sync.Mutex
		wg             sync.WaitGroup
		successPos     []string
		minFailedPos   string
		unplacedFailed bool
	)
	sem := make(chan struct{}, p.workers)

	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item models.RawItem) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := p.processItem(ctx, adapter, auth, item)

			mu.Lock()
			defer mu.Unlock()
			if outcome.failure != "" {
				result.Failures = append(result.Failures, models.BatchFailure{
					ItemID: outcome.itemID,
					Reason: outcome.failure,
				})
				// Failed items stay eligible for retry; their positions
				// become a ceiling for the cursor advance below.
				if outcome.position == "" {
					unplacedFailed = true
				} else if minFailedPos == "" || outcome.position < minFailedPos {
					minFailedPos = outcome.position
				}
				return
			}
			if outcome.skipped {
				result.ItemsSkipped++
			}
			result.TasksCreated += outcome.tasks
			successPos = append(successPos, outcome.position)
		}(item)
	}
	wg.Wait()

	// The cursor never passes a failed item: advance only to the highest
	// successful position still below every failure, so the next batch
	// refetches the failed items. Successful items left above the cursor
	// are protected from re-extraction by their processed records. A
	// failure whose position is unknown (id-only listing, fetch failed)
	// holds the cursor entirely.
	maxPos := ""
	if !unplacedFailed {
		for _, pos := range successPos {
			if pos > maxPos && (minFailedPos == "" || pos < minFailedPos) {
				maxPos = pos
			}
		}
	}
	// Runs on every batch, including zero-advance ones, so lastSyncAt and
	// lastBatchSize stay current.
	if err := p.store.AdvanceCursor(ctx, userID, source, maxPos, len(items)); err != nil {
		log.Printf("WARNING: Failed to advance %s cursor for user %s: %v", source, userID, err)
	}

	return result, nil
}

// RunAll executes batches for every source with supplied credentials.
// Sources are isolated: one source's failure never blocks another's.
func (p *PipelineService) RunAll(ctx context.Context, userID string, creds map[models.TaskSource]models.SourceCredentials) *models.RunAllResponse {
	response := &models.RunAllResponse{}
	for _, source := range p.Sources() {
		sourceCreds, ok := creds[source]
		if !ok {
			continue
		}
		outcome := models.SourceOutcome{Source: source}
		result, err := p.RunBatch(ctx, userID, source, sourceCreds)
		if err != nil {
			log.Printf("ERROR: Batch failed for user %s source %s: %v", userID, source, err)
			outcome.Error = err.Error()
		} else {
			outcome.Result = result
		}
		response.Results = append(response.Results, outcome)
	}
	return response
}

// processItem walks one item through Unseen → Fetched → (Skipped |
// Classified) → Extracted → Materialized → Done, mapping any error to a
// soft failure for this item only.
func (p *PipelineService) processItem(ctx context.Context, adapter sources.Adapter, auth sources.AuthContext, item models.RawItem) itemOutcome {
	// Carry the listing's position from the start so a failure is still
	// placeable in the cursor ordering; FetchDetail refines it for sources
	// whose listing is id-only.
	outcome := itemOutcome{itemID: item.ID, position: item.Position}
	userID := auth.UserID
	source := adapter.Name()

	// Already-evaluated items are skipped before any detail fetch or
	// model call; their prior position still counts toward the cursor.
	record, err := p.store.IsProcessed(ctx, userID, source, item.ID)
	if err != nil {
		outcome.failure = "record-check"
		return outcome
	}
	if record != nil {
		// Prior tasks from this item stay on the record; display reads
		// them through the task listing, not the batch result.
		outcome.skipped = true
		return outcome
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	detail, err := adapter.FetchDetail(fetchCtx, auth, item)
	cancel()
	if err != nil {
		log.Printf("WARNING: Detail fetch failed for %s item %s: %v", source, item.ID, err)
		outcome.failure = "fetch"
		return outcome
	}
	outcome.position = detail.Position

	text := Normalize(detail)
	if text == "" {
		// Nothing analyzable; record it so the item is never rescanned.
		outcome.skipped = true
		if err := p.markProcessed(ctx, userID, source, detail, nil); err != nil {
			outcome.failure = "record"
		}
		return outcome
	}

	candidates, err := p.extractor.Extract(ctx, text, source)
	if err != nil {
		if errors.Is(err, ErrUnparseable) {
			log.Printf("WARNING: Unparseable model output for %s item %s", source, item.ID)
			outcome.failure = "parse"
		} else {
			log.Printf("WARNING: Extraction failed for %s item %s: %v", source, item.ID, err)
			outcome.failure = "extract"
		}
		return outcome
	}

	tasks, err := p.materializer.Materialize(ctx, userID, source, detail, candidates)
	if err != nil {
		log.Printf("WARNING: Failed to persist tasks for %s item %s: %v", source, item.ID, err)
		outcome.failure = "persist"
		return outcome
	}
	outcome.tasks = len(tasks)

	taskIDs := make([]string, 0, len(tasks))
	for _, task := range tasks {
		taskIDs = append(taskIDs, task.ID)
	}
	if err := p.markProcessed(ctx, userID, source, detail, taskIDs); err != nil {
		// Without the record the item would be re-extracted next batch.
		outcome.failure = "record"
		return outcome
	}

	// Best-effort: a failed external marker only risks a redundant fetch
	// next cycle, never duplicate tasks, because the record above is
	// checked first.
	if err := adapter.MarkHandled(ctx, auth, detail); err != nil {
		log.Printf("WARNING: markHandled failed for %s item %s: %v", source, item.ID, err)
	}

	return outcome
}

func (p *PipelineService) markProcessed(ctx context.Context, userID string, source models.TaskSource, item models.RawItem, taskIDs []string) error {
	return p.store.MarkProcessed(ctx, &models.ProcessedItem{
		UserID:       userID,
		Source:       source,
		SourceItemID: item.ID,
		ProcessedAt:  time.Now().UTC(),
		TaskIDs:      taskIDs,
	})
}
