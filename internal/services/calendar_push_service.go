package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"taskharvest/internal/models"
	"taskharvest/internal/storage"
)

// taskIDProperty is the private extended property attached to pushed
// events so reruns find them instead of inserting duplicates.
const taskIDProperty = "taskharvestTaskId"

// CalendarPushResult summarizes one push run.
type CalendarPushResult struct {
	UserID  string `json:"userId"`
	Pushed  int    `json:"pushed"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
}

// CalendarPushService writes open tasks with a scheduled time back to the
// user's calendar as events. Pushes are idempotent per task: an already
// pushed task updates its event in place.
type CalendarPushService struct {
	store      storage.Store
	calendarID string
}

// NewCalendarPushService creates the push service targeting calendarID.
func NewCalendarPushService(store storage.Store, calendarID string) *CalendarPushService {
	return &CalendarPushService{store: store, calendarID: calendarID}
}

// PushScheduled pushes every open, scheduled task to the calendar.
func (s *CalendarPushService) PushScheduled(ctx context.Context, userID, token string) (*CalendarPushResult, error) {
	if token == "" {
		return nil, fmt.Errorf("missing calendar token")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar client: %w", err)
	}

	tasks, err := s.store.ListOpenTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open tasks: %w", err)
	}

	result := &CalendarPushResult{UserID: userID}
	for i := range tasks {
		task := &tasks[i]
		if task.ScheduledTime == nil {
			result.Skipped++
			continue
		}
		if err := s.pushTask(ctx, svc, task, result); err != nil {
			log.Printf("WARNING: Failed to push task %s to calendar: %v", task.ID, err)
			result.Skipped++
		}
	}
	return result, nil
}

func (s *CalendarPushService) pushTask(ctx context.Context, svc *calendar.Service, task *models.Task, result *CalendarPushResult) error {
	event := s.eventForTask(task)

	existing, err := s.findPushedEvent(ctx, svc, task)
	if err != nil {
		return err
	}
	if existing != nil {
		if _, err := svc.Events.Patch(s.calendarID, existing.Id, event).Context(ctx).Do(); err != nil {
			return fmt.Errorf("event patch failed: %w", err)
		}
		result.Updated++
		return s.recordPushedEvent(ctx, task, existing.Id)
	}

	created, err := svc.Events.Insert(s.calendarID, event).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("event insert failed: %w", err)
	}
	result.Pushed++
	return s.recordPushedEvent(ctx, task, created.Id)
}

// findPushedEvent looks up a previously pushed event for task: first via
// the recorded event id, then via the extended property in case the
// record was lost.
func (s *CalendarPushService) findPushedEvent(ctx context.Context, svc *calendar.Service, task *models.Task) (*calendar.Event, error) {
	if eventID := task.Metadata[models.MetaPushedEvent]; eventID != "" {
		ev, err := svc.Events.Get(s.calendarID, eventID).Context(ctx).Do()
		if err == nil && ev.Status != "cancelled" {
			return ev, nil
		}
	}

	resp, err := svc.Events.List(s.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", taskIDProperty, task.ID)).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("event lookup failed: %w", err)
	}
	for _, ev := range resp.Items {
		if ev.Status != "cancelled" {
			return ev, nil
		}
	}
	return nil, nil
}

func (s *CalendarPushService) eventForTask(task *models.Task) *calendar.Event {
	start := task.ScheduledTime.UTC()
	duration := task.DurationMinutes
	if duration <= 0 {
		duration = 30
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	return &calendar.Event{
		Summary:     task.Title,
		Description: task.Description,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{taskIDProperty: task.ID},
		},
	}
}

func (s *CalendarPushService) recordPushedEvent(ctx context.Context, task *models.Task, eventID string) error {
	if err := s.store.SetTaskMetadata(ctx, task.ID, models.MetaPushedEvent, eventID); err != nil {
		return fmt.Errorf("failed to record pushed event: %w", err)
	}
	return nil
}
