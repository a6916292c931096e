package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"taskharvest/internal/config"
	"taskharvest/internal/models"
	"taskharvest/internal/utils"
	"taskharvest/internal/validation"
)

// ErrUnparseable marks a hard extraction failure: the model response
// contained no parseable JSON at all. Distinct from a well-formed "no
// actionable tasks" response, which returns an empty slice and nil error;
// only unparseable items are retried on the next batch.
var ErrUnparseable = errors.New("no parseable JSON in model response")

const (
	defaultPriority = 3
	defaultDuration = 30
	minPriority     = 1
	maxPriority     = 5
)

// Extractor converts normalized source text into task candidates.
type Extractor interface {
	Extract(ctx context.Context, normalizedText string, source models.TaskSource) ([]models.ExtractionCandidate, error)
}

// ExtractionService calls the language model once per item and parses the
// untrusted response through layered recovery.
type ExtractionService struct {
	client  *openai.Client
	cfg     config.OpenAIConfig
	timeout time.Duration
}

// NewExtractionService creates the model-backed extractor.
func NewExtractionService(cfg config.OpenAIConfig, timeout time.Duration) *ExtractionService {
	return &ExtractionService{
		client:  openai.NewClient(cfg.APIKey),
		cfg:     cfg,
		timeout: timeout,
	}
}

const extractionSystemPrompt = "You extract actionable work items from raw workplace content. " +
	"Respond with ONLY a JSON array of task objects. No markdown, no explanatory text. " +
	"If the content contains nothing actionable, respond with an empty JSON array: []"

// sourceHint gives the model a one-line framing per source.
func sourceHint(source models.TaskSource) string {
	switch source {
	case models.SourceMailbox:
		return "The content is an email. Requests addressed to the recipient become tasks; newsletters and notifications usually contain none."
	case models.SourceChat:
		return "The content is a chat message. Only direct asks or commitments become tasks."
	case models.SourceWiki:
		return "The content is a wiki page. Unchecked to-do items ([ ]) and explicit action points become tasks; checked items ([x]) do not."
	case models.SourceMeeting:
		return "The content is a meeting transcript. Action items, commitments and follow-ups mentioned by participants become tasks."
	case models.SourceCalendar:
		return "The content is a calendar event. Preparation work it implies becomes tasks; the event itself is a scheduled-event task only if it needs active work."
	default:
		return ""
	}
}

// buildExtractionPrompt embeds the taxonomy, the priority scale, the
// current time (for resolving relative dates like "tomorrow") and the
// capped content. Deterministic given the same inputs and clock.
func buildExtractionPrompt(normalizedText string, source models.TaskSource, now time.Time) string {
	types := make([]string, 0, len(models.AllTaskTypes()))
	for _, t := range models.AllTaskTypes() {
		types = append(types, string(t))
	}

	return fmt.Sprintf(`%s

Current date and time: %s

Each task object has these fields:
- "title" (required): short imperative summary
- "description": one or two sentences of context
- "type": one of %s
- "priority": integer 1 (lowest) to 5 (highest)
- "tags": array of short lowercase strings
- "dueDate": ISO 8601 timestamp or null
- "scheduledTime": ISO 8601 timestamp or null
- "durationMinutes": estimated effort in minutes

Resolve relative dates ("tomorrow", "next Friday") against the current
date above. Use null when no date is stated.

CONTENT:
%s`, sourceHint(source), now.UTC().Format(time.RFC3339), strings.Join(types, ", "), normalizedText)
}

// Extract invokes the model for one item. Items are never batched into a
// shared call, so a single malformed item cannot corrupt its siblings.
func (s *ExtractionService) Extract(ctx context.Context, normalizedText string, source models.TaskSource) ([]models.ExtractionCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	model := s.cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(s.cfg.Temperature),
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildExtractionPrompt(normalizedText, source, time.Now())},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrUnparseable
	}

	return ParseCandidates(resp.Choices[0].Message.Content)
}

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// extractJSONPayload pulls the JSON portion out of a free-text model
// response. Layered, first match wins: (1) first balanced top-level {...}
// or [...] span, (2) fenced code block labeled json, (3) nothing.
func extractJSONPayload(raw string) string {
	if span := firstJSONSpan(raw); span != "" {
		return span
	}
	if match := fencedJSONPattern.FindStringSubmatch(raw); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// firstJSONSpan scans for the first balanced brace or bracket span,
// ignoring delimiters inside string literals.
func firstJSONSpan(raw string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if raw[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

// ParseCandidates parses a raw model response into coerced candidates.
// Accepts a bare array, a {"tasks": [...]} wrapper, or a single object.
// Returns ErrUnparseable only when no JSON can be recovered at all; an
// empty but well-formed response is a valid "no tasks" classification.
func ParseCandidates(raw string) ([]models.ExtractionCandidate, error) {
	payload := extractJSONPayload(raw)
	if payload == "" {
		return nil, ErrUnparseable
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	candidates := make([]models.ExtractionCandidate, 0)
	for _, m := range candidateMaps(decoded) {
		if err := validation.ValidateCandidate(m); err != nil {
			log.Printf("WARNING: Dropping extraction candidate: %v", err)
			continue
		}
		candidate := coerceCandidate(m)
		if candidate.Title == "" {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// candidateMaps normalizes the three accepted payload shapes into a list
// of candidate objects.
func candidateMaps(decoded interface{}) []map[string]interface{} {
	switch val := decoded.(type) {
	case []interface{}:
		var out []map[string]interface{}
		for _, entry := range val {
			if m, ok := entry.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]interface{}:
		if nested, ok := val["tasks"]; ok {
			return candidateMaps(nested)
		}
		if _, ok := val["title"]; ok {
			return []map[string]interface{}{val}
		}
	}
	return nil
}

// coerceCandidate repairs type mismatches and clamps out-of-range values.
// Unknown types become "custom", priority lands in [1,5], bad dates
// become nil. Defensive defaults, never errors.
func coerceCandidate(m map[string]interface{}) models.ExtractionCandidate {
	candidate := models.ExtractionCandidate{
		Title:           strings.TrimSpace(asString(m["title"])),
		Description:     strings.TrimSpace(asString(m["description"])),
		Type:            coerceType(asString(m["type"])),
		Priority:        ClampPriority(asInt(m["priority"], defaultPriority)),
		Tags:            asStringSlice(m["tags"]),
		DurationMinutes: asInt(m["durationMinutes"], defaultDuration),
		DueDate:         utils.ParseTimestamp(asString(m["dueDate"])),
		ScheduledTime:   utils.ParseTimestamp(asString(m["scheduledTime"])),
	}
	if candidate.DurationMinutes < 0 {
		candidate.DurationMinutes = defaultDuration
	}
	return candidate
}

func coerceType(t string) models.TaskType {
	t = strings.ToLower(strings.TrimSpace(t))
	if models.KnownTaskType(t) {
		return models.TaskType(t)
	}
	return models.TypeCustom
}

// ClampPriority forces a priority into the 1-5 scale.
func ClampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asInt accepts JSON numbers and numeric strings; sometimes the model
// emits "3" where 3 is expected.
func asInt(v interface{}, fallback int) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func asStringSlice(v interface{}) []string {
	entries, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if s, ok := entry.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
