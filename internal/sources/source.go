package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"

	"taskharvest/internal/models"
)

// ErrBadCredentials marks a fatal-for-batch auth failure. Adapters return
// it (wrapped) when the source rejects the supplied token; the pipeline
// aborts the whole batch instead of retrying per item.
var ErrBadCredentials = errors.New("source rejected credentials")

// AuthContext carries the resolved user and the per-source credential for
// one batch. Token acquisition and refresh happen upstream.
type AuthContext struct {
	UserID string
	Token  string
}

// Adapter is the per-source ingestion contract. Implementations tolerate
// missing or partial fields in source payloads, substitute defaults, and
// cap content size; they never fail a whole listing over one bad item.
type Adapter interface {
	Name() models.TaskSource

	// ListNewItems fetches items newer than the cursor, bounded by
	// PageSize. A nil cursor means first sync; the adapter falls back to
	// its DefaultLookback window rather than fetching all history.
	ListNewItems(ctx context.Context, auth AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error)

	// FetchDetail loads the item body. For sources whose listing already
	// carries full content this returns the item unchanged.
	FetchDetail(ctx context.Context, auth AuthContext, item models.RawItem) (models.RawItem, error)

	// MarkHandled reflects processed state in the source itself where the
	// source supports a server-side marker; otherwise a no-op. Failure
	// here only risks redundant fetches, never duplicate tasks.
	MarkHandled(ctx context.Context, auth AuthContext, item models.RawItem) error

	DefaultLookback() time.Duration
	PageSize() int
}

// asCredentialError converts a Google API auth rejection (401/403) into
// ErrBadCredentials. Transient failures (5xx, unreachable API) pass
// through unchanged; they are still fatal for the batch but are not
// reported as credential problems.
func asCredentialError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	return err
}

// sinceTime resolves the fetch-window start for an adapter: the cursor's
// own timestamp interpretation when present, else now minus the lookback.
func sinceTime(cursor *models.SyncCursor, parse func(position string) (time.Time, bool), lookback time.Duration) time.Time {
	if cursor != nil && cursor.Position != "" {
		if t, ok := parse(cursor.Position); ok {
			return t
		}
	}
	return time.Now().UTC().Add(-lookback)
}
