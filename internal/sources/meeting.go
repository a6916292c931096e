package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"taskharvest/internal/models"
	"taskharvest/internal/utils"
)

const (
	meetingBodyCap  = 4000
	meetingPageSize = 20
	meetingLookback = 7 * 24 * time.Hour
)

// MeetingAdapter ingests a meeting-transcript feed. Transcripts below the
// minimum length are filtered out here before they ever reach extraction;
// that filtering is part of the adapter's contract. Cursor positions are
// the transcript end timestamp as UTC RFC3339.
type MeetingAdapter struct {
	baseURL          string
	client           *http.Client
	minTranscriptLen int
}

type transcriptSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	EndedAt   string `json:"ended_at"`
	CharCount int    `json:"char_count"`
}

type transcriptListResponse struct {
	Transcripts []transcriptSummary `json:"transcripts"`
}

type transcriptLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type transcriptDetailResponse struct {
	Lines []transcriptLine `json:"lines"`
}

// NewMeetingAdapter creates a meeting-transcript adapter against baseURL.
func NewMeetingAdapter(baseURL string, minTranscriptLen int) *MeetingAdapter {
	return &MeetingAdapter{
		baseURL:          baseURL,
		client:           &http.Client{Timeout: 30 * time.Second},
		minTranscriptLen: minTranscriptLen,
	}
}

func (a *MeetingAdapter) Name() models.TaskSource        { return models.SourceMeeting }
func (a *MeetingAdapter) DefaultLookback() time.Duration { return meetingLookback }
func (a *MeetingAdapter) PageSize() int                  { return meetingPageSize }

// analyzable reports whether a transcript carries enough content to be
// worth extracting from.
func (a *MeetingAdapter) analyzable(t transcriptSummary) bool {
	return t.CharCount >= a.minTranscriptLen
}

func (a *MeetingAdapter) getJSON(ctx context.Context, auth AuthContext, path string, params url.Values, out interface{}) error {
	endpoint := a.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create transcript request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("transcript API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: transcript API returned status %d", ErrBadCredentials, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transcript API error (status %d)", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse transcript response: %w", err)
	}
	return nil
}

// ListNewItems lists transcripts ended since the cursor window, skipping
// ones too short to analyze.
func (a *MeetingAdapter) ListNewItems(ctx context.Context, auth AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error) {
	since := sinceTime(cursor, parseWikiPosition, a.DefaultLookback())

	var listResp transcriptListResponse
	params := url.Values{
		"since": {since.UTC().Format(time.RFC3339)},
		"limit": {strconv.Itoa(a.PageSize())},
	}
	if err := a.getJSON(ctx, auth, "/transcripts", params, &listResp); err != nil {
		return nil, err
	}

	var items []models.RawItem
	for _, summary := range listResp.Transcripts {
		if !a.analyzable(summary) {
			continue
		}
		item := models.RawItem{
			Source: models.SourceMeeting,
			ID:     summary.ID,
			Title:  summary.Title,
		}
		if ended := utils.ParseTimestamp(summary.EndedAt); ended != nil {
			item.Timestamp = *ended
			item.Position = ended.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchDetail loads transcript lines as speaker-labeled blocks, capped.
func (a *MeetingAdapter) FetchDetail(ctx context.Context, auth AuthContext, item models.RawItem) (models.RawItem, error) {
	var detail transcriptDetailResponse
	path := fmt.Sprintf("/transcripts/%s", item.ID)
	if err := a.getJSON(ctx, auth, path, nil, &detail); err != nil {
		return item, fmt.Errorf("failed to fetch transcript %s: %w", item.ID, err)
	}

	total := 0
	for _, line := range detail.Lines {
		if line.Text == "" {
			continue
		}
		speaker := line.Speaker
		if speaker == "" {
			speaker = "unknown"
		}
		text := fmt.Sprintf("%s: %s", speaker, line.Text)
		if total+len(text) > meetingBodyCap {
			text = utils.Truncate(text, meetingBodyCap-total)
		}
		item.Blocks = append(item.Blocks, models.Block{Type: "line", Text: text})
		total += len(text)
		if total >= meetingBodyCap {
			break
		}
	}
	return item, nil
}

// MarkHandled is a no-op for meeting transcripts.
func (a *MeetingAdapter) MarkHandled(ctx context.Context, auth AuthContext, item models.RawItem) error {
	return nil
}
