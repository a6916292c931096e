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
	chatBodyCap      = 800
	chatPageSize     = 100
	chatLookback     = 24 * time.Hour
	channelsCacheTTL = 5 * time.Minute
)

// ChatAdapter ingests a Slack-compatible workspace. Cursor positions are
// the message "ts" values: epoch seconds with a fractional part, which
// order correctly as strings for same-width epochs. The channel listing
// is memoized in a TTL cache so frequent batches do not hammer the
// list endpoint.
type ChatAdapter struct {
	baseURL  string
	client   *http.Client
	channels *TTLCache // userID -> []chatChannel
}

type chatChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chatListResponse struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error"`
	Channels []chatChannel `json:"channels"`
}

type chatMessage struct {
	TS     string `json:"ts"`
	User   string `json:"user"`
	Text   string `json:"text"`
	Thread string `json:"thread_ts"`
}

type chatHistoryResponse struct {
	OK       bool          `json:"ok"`
	Error    string        `json:"error"`
	Messages []chatMessage `json:"messages"`
}

// NewChatAdapter creates a chat adapter against baseURL.
func NewChatAdapter(baseURL string) *ChatAdapter {
	return &ChatAdapter{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		channels: NewTTLCache(channelsCacheTTL),
	}
}

func (a *ChatAdapter) Name() models.TaskSource        { return models.SourceChat }
func (a *ChatAdapter) DefaultLookback() time.Duration { return chatLookback }
func (a *ChatAdapter) PageSize() int                  { return chatPageSize }

func parseChatPosition(position string) (time.Time, bool) {
	seconds, err := strconv.ParseFloat(position, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(seconds), 0).UTC(), true
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func (a *ChatAdapter) getJSON(ctx context.Context, auth AuthContext, path string, params url.Values, out interface{}) error {
	endpoint := a.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: chat API returned status %d", ErrBadCredentials, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat API error (status %d)", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse chat response: %w", err)
	}
	return nil
}

// listChannels returns the workspace channels, cached per user.
func (a *ChatAdapter) listChannels(ctx context.Context, auth AuthContext) ([]chatChannel, error) {
	if cached, ok := a.channels.Get(auth.UserID); ok {
		return cached.([]chatChannel), nil
	}

	var listResp chatListResponse
	params := url.Values{"types": {"public_channel"}, "limit": {"200"}}
	if err := a.getJSON(ctx, auth, "/conversations.list", params, &listResp); err != nil {
		return nil, err
	}
	if !listResp.OK {
		if listResp.Error == "invalid_auth" || listResp.Error == "token_revoked" {
			return nil, fmt.Errorf("%w: %s", ErrBadCredentials, listResp.Error)
		}
		return nil, fmt.Errorf("chat API error: %s", listResp.Error)
	}

	a.channels.Set(auth.UserID, listResp.Channels)
	return listResp.Channels, nil
}

// ListNewItems fetches messages newer than the cursor across all channels.
// Message content arrives inline, so FetchDetail is a pass-through.
func (a *ChatAdapter) ListNewItems(ctx context.Context, auth AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error) {
	channels, err := a.listChannels(ctx, auth)
	if err != nil {
		return nil, err
	}

	oldest := ""
	if cursor != nil && cursor.Position != "" {
		oldest = cursor.Position
	} else {
		since := time.Now().UTC().Add(-a.DefaultLookback())
		oldest = fmt.Sprintf("%d.000000", since.Unix())
	}

	var items []models.RawItem
	for _, channel := range channels {
		if len(items) >= a.PageSize() {
			break
		}
		var history chatHistoryResponse
		params := url.Values{
			"channel": {channel.ID},
			"oldest":  {oldest},
			"limit":   {strconv.Itoa(a.PageSize() - len(items))},
		}
		if err := a.getJSON(ctx, auth, "/conversations.history", params, &history); err != nil {
			return nil, err
		}
		if !history.OK {
			// A single unreadable channel does not fail the listing.
			continue
		}
		for _, msg := range history.Messages {
			if msg.Text == "" || msg.TS == "" {
				continue
			}
			ts, _ := parseChatPosition(msg.TS)
			items = append(items, models.RawItem{
				Source:      models.SourceChat,
				ID:          channel.ID + ":" + msg.TS,
				Timestamp:   ts,
				Position:    msg.TS,
				ChannelID:   channel.ID,
				ChannelName: channel.Name,
				Sender:      msg.User,
				Thread:      msg.Thread,
				Body:        utils.Truncate(msg.Text, chatBodyCap),
			})
		}
	}
	return items, nil
}

// FetchDetail is a pass-through; listing already carries full content.
func (a *ChatAdapter) FetchDetail(ctx context.Context, auth AuthContext, item models.RawItem) (models.RawItem, error) {
	return item, nil
}

// MarkHandled is a no-op; chat has no server-side processed marker, the
// processed-item record is the only guard.
func (a *ChatAdapter) MarkHandled(ctx context.Context, auth AuthContext, item models.RawItem) error {
	return nil
}
