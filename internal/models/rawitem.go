package models

import "time"

// Block is one structural unit of a wiki page or transcript, flattened to
// text with its type preserved as a lightweight hint for the extractor.
type Block struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Checked bool   `json:"checked,omitempty"`
}

// RawItem is a tagged variant over the five source payload shapes. Source
// selects which fields are meaningful; the normalizer matches on it
// exhaustively instead of passing untyped maps through the pipeline.
type RawItem struct {
	Source    TaskSource
	ID        string
	Timestamp time.Time
	// Position is this item's cursor position in the source's own ordering.
	// Empty until FetchDetail for sources whose listing is id-only.
	Position string

	// Mailbox.
	Subject string
	From    string
	Thread  string

	// Chat.
	ChannelID   string
	ChannelName string
	Sender      string

	// Wiki and meeting.
	Title  string
	Blocks []Block

	// Flat body text (mailbox, chat, calendar). Already capped by the
	// adapter that produced it.
	Body string

	Metadata map[string]string
}

// ExtractionCandidate is the model's proposed task after parsing and
// coercion, before materialization. Never persisted directly.
type ExtractionCandidate struct {
	Title           string
	Description     string
	Type            TaskType
	Priority        int
	Tags            []string
	DueDate         *time.Time
	ScheduledTime   *time.Time
	DurationMinutes int
}
