package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"taskharvest/internal/models"
	"taskharvest/internal/utils"
)

const (
	wikiBlockCap = 4000
	wikiPageSize = 20
	wikiLookback = 7 * 24 * time.Hour
)

// WikiAdapter ingests a Notion-compatible wiki. Cursor positions are the
// page last-edited timestamp as UTC RFC3339, which orders correctly as a
// string. The wiki has no server-side processed marker; the
// processed-item record is the only guard.
type WikiAdapter struct {
	baseURL string
	client  *http.Client
}

type wikiPage struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	LastEditedTime string `json:"last_edited_time"`
}

type wikiSearchResponse struct {
	Results []wikiPage `json:"results"`
}

type wikiBlock struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type wikiBlocksResponse struct {
	Results []wikiBlock `json:"results"`
}

// NewWikiAdapter creates a wiki adapter against baseURL.
func NewWikiAdapter(baseURL string) *WikiAdapter {
	return &WikiAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *WikiAdapter) Name() models.TaskSource        { return models.SourceWiki }
func (a *WikiAdapter) DefaultLookback() time.Duration { return wikiLookback }
func (a *WikiAdapter) PageSize() int                  { return wikiPageSize }

func parseWikiPosition(position string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, position)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func (a *WikiAdapter) doJSON(ctx context.Context, auth AuthContext, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal wiki request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create wiki request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("wiki API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: wiki API returned status %d", ErrBadCredentials, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wiki API error (status %d)", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse wiki response: %w", err)
	}
	return nil
}

// ListNewItems searches for pages edited since the cursor window.
func (a *WikiAdapter) ListNewItems(ctx context.Context, auth AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error) {
	since := sinceTime(cursor, parseWikiPosition, a.DefaultLookback())

	var searchResp wikiSearchResponse
	body := map[string]interface{}{
		"edited_since": since.UTC().Format(time.RFC3339),
		"page_size":    a.PageSize(),
	}
	if err := a.doJSON(ctx, auth, http.MethodPost, "/search", body, &searchResp); err != nil {
		return nil, err
	}

	items := make([]models.RawItem, 0, len(searchResp.Results))
	for _, page := range searchResp.Results {
		edited := utils.ParseTimestamp(page.LastEditedTime)
		item := models.RawItem{
			Source: models.SourceWiki,
			ID:     page.ID,
			Title:  page.Title,
		}
		if edited != nil {
			item.Timestamp = *edited
			item.Position = edited.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchDetail loads the page's block children, keeping block types as
// structural hints and capping total text.
func (a *WikiAdapter) FetchDetail(ctx context.Context, auth AuthContext, item models.RawItem) (models.RawItem, error) {
	var blocksResp wikiBlocksResponse
	path := fmt.Sprintf("/pages/%s/blocks", item.ID)
	if err := a.doJSON(ctx, auth, http.MethodGet, path, nil, &blocksResp); err != nil {
		return item, fmt.Errorf("failed to fetch page %s: %w", item.ID, err)
	}

	total := 0
	for _, block := range blocksResp.Results {
		if block.Text == "" {
			continue
		}
		text := block.Text
		if total+len(text) > wikiBlockCap {
			text = utils.Truncate(text, wikiBlockCap-total)
		}
		item.Blocks = append(item.Blocks, models.Block{
			Type:    block.Type,
			Text:    text,
			Checked: block.Checked,
		})
		total += len(text)
		if total >= wikiBlockCap {
			break
		}
	}
	return item, nil
}

// MarkHandled is a no-op for wiki pages.
func (a *WikiAdapter) MarkHandled(ctx context.Context, auth AuthContext, item models.RawItem) error {
	return nil
}
