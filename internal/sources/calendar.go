package sources

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"taskharvest/internal/models"
	"taskharvest/internal/utils"
)

const (
	calendarBodyCap  = 1200
	calendarPageSize = 50
	calendarLookback = 7 * 24 * time.Hour
)

// CalendarAdapter ingests Google Calendar events. All-day events and
// events with no analyzable content are filtered out here, before they
// ever reach extraction. Cursor positions are the event start time as
// UTC RFC3339.
type CalendarAdapter struct {
	calendarID string
}

// NewCalendarAdapter creates a calendar adapter for calendarID
// ("primary" for the user's default calendar).
func NewCalendarAdapter(calendarID string) *CalendarAdapter {
	return &CalendarAdapter{calendarID: calendarID}
}

func (a *CalendarAdapter) Name() models.TaskSource        { return models.SourceCalendar }
func (a *CalendarAdapter) DefaultLookback() time.Duration { return calendarLookback }
func (a *CalendarAdapter) PageSize() int                  { return calendarPageSize }

func (a *CalendarAdapter) service(ctx context.Context, auth AuthContext) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar client: %w", err)
	}
	return svc, nil
}

// analyzableEvent filters out items with nothing to extract: cancelled
// events, all-day events (no DateTime, only a Date), and events with
// neither summary nor description.
func analyzableEvent(ev *calendar.Event) bool {
	if ev == nil || ev.Status == "cancelled" {
		return false
	}
	if ev.Start == nil || ev.Start.DateTime == "" {
		return false
	}
	return ev.Summary != "" || ev.Description != ""
}

// ListNewItems lists events starting after the cursor window. Event
// payloads arrive complete, so FetchDetail is a pass-through.
func (a *CalendarAdapter) ListNewItems(ctx context.Context, auth AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error) {
	svc, err := a.service(ctx, auth)
	if err != nil {
		return nil, err
	}

	since := sinceTime(cursor, parseWikiPosition, a.DefaultLookback())
	resp, err := svc.Events.List(a.calendarID).
		TimeMin(since.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(a.PageSize())).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("calendar list failed: %w", asCredentialError(err))
	}

	var items []models.RawItem
	for _, ev := range resp.Items {
		if !analyzableEvent(ev) {
			continue
		}
		start := utils.ParseTimestamp(ev.Start.DateTime)
		item := models.RawItem{
			Source: models.SourceCalendar,
			ID:     ev.Id,
			Title:  ev.Summary,
			Body:   utils.Truncate(ev.Description, calendarBodyCap),
			Metadata: map[string]string{
				"location": ev.Location,
			},
		}
		if start != nil {
			item.Timestamp = *start
			item.Position = start.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchDetail is a pass-through; the listing carries full event payloads.
func (a *CalendarAdapter) FetchDetail(ctx context.Context, auth AuthContext, item models.RawItem) (models.RawItem, error) {
	return item, nil
}

// MarkHandled is a no-op for calendar events.
func (a *CalendarAdapter) MarkHandled(ctx context.Context, auth AuthContext, item models.RawItem) error {
	return nil
}
