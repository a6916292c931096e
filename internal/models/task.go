package models

import "time"

// TaskSource identifies the external system a task was extracted from.
type TaskSource string

const (
	SourceManual   TaskSource = "manual"
	SourceVoice    TaskSource = "voice"
	SourceMailbox  TaskSource = "mailbox"
	SourceChat     TaskSource = "chat"
	SourceWiki     TaskSource = "wiki"
	SourceCalendar TaskSource = "calendar"
	SourceMeeting  TaskSource = "meeting"
)

// SyncSources are the sources the pipeline can run a batch against.
var SyncSources = []TaskSource{
	SourceMailbox,
	SourceChat,
	SourceWiki,
	SourceMeeting,
	SourceCalendar,
}

// TaskType is the closed taxonomy of task classifications.
type TaskType string

const (
	TypeFollowUp       TaskType = "follow-up"
	TypeQuickWin       TaskType = "quick-win"
	TypeDeepWork       TaskType = "deep-work"
	TypeDeadlineBased  TaskType = "deadline-based"
	TypeRecurring      TaskType = "recurring"
	TypeScheduledEvent TaskType = "scheduled-event"
	TypeReferenceOnly  TaskType = "reference-only"
	TypeBlocked        TaskType = "blocked"
	TypeCustom         TaskType = "custom"
)

// AllTaskTypes returns the taxonomy in a stable order (used to build prompts).
func AllTaskTypes() []TaskType {
	return []TaskType{
		TypeFollowUp,
		TypeQuickWin,
		TypeDeepWork,
		TypeDeadlineBased,
		TypeRecurring,
		TypeScheduledEvent,
		TypeReferenceOnly,
		TypeBlocked,
		TypeCustom,
	}
}

// KnownTaskType reports whether t is part of the fixed taxonomy.
func KnownTaskType(t string) bool {
	for _, known := range AllTaskTypes() {
		if string(known) == t {
			return true
		}
	}
	return false
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusWaiting    TaskStatus = "waiting"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// Metadata keys used for provenance.
const (
	MetaSourceItemID = "sourceItemId"
	MetaThreadID     = "threadId"
	MetaChannelID    = "channelId"
	MetaChannelName  = "channelName"
	MetaSender       = "sender"
	MetaPageID       = "pageId"
	MetaPageTitle    = "pageTitle"
	MetaMeetingTitle = "meetingTitle"
	MetaEventID      = "calendarEventId"
	MetaPushedEvent  = "pushedEventId"
)

// Task is the canonical work item produced by the pipeline.
type Task struct {
	ID              string            `bson:"_id" json:"id"`
	UserID          string            `bson:"userId" json:"userId"`
	Title           string            `bson:"title" json:"title"`
	Description     string            `bson:"description,omitempty" json:"description,omitempty"`
	Tags            []string          `bson:"tags,omitempty" json:"tags,omitempty"`
	Type            TaskType          `bson:"type" json:"type"`
	Priority        int               `bson:"priority" json:"priority"`
	Status          TaskStatus        `bson:"status" json:"status"`
	DueDate         *time.Time        `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	ScheduledTime   *time.Time        `bson:"scheduledTime,omitempty" json:"scheduledTime,omitempty"`
	DurationMinutes int               `bson:"durationMinutes" json:"durationMinutes"`
	Source          TaskSource        `bson:"source" json:"source"`
	Metadata        map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt       time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time         `bson:"updatedAt" json:"updatedAt"`
	CompletedAt     *time.Time        `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// SourceItemID returns the provenance key for the source item this task
// was extracted from, or "" for manually created tasks.
func (t *Task) SourceItemID() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaSourceItemID]
}

// Open reports whether the task still needs attention.
func (t *Task) Open() bool {
	return t.Status != StatusDone && t.Status != StatusCancelled
}
