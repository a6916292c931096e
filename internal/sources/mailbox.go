package sources

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"taskharvest/internal/models"
	"taskharvest/internal/utils"
)

const (
	mailboxBodyCap   = 4000
	mailboxPageSize  = 25
	mailboxLookback  = 7 * 24 * time.Hour
	positionPadWidth = 16
)

// MailboxAdapter ingests a Gmail mailbox. Cursor positions are the
// message internal-date in epoch milliseconds, zero-padded so they stay
// lexicographically ordered. markHandled applies a dedicated label, so
// the mailbox itself reflects processed state.
type MailboxAdapter struct {
	processedLabel string
	labelCache     *TTLCache // userID -> label id
}

// NewMailboxAdapter creates a mailbox adapter that marks handled messages
// with labelName (created on first use).
func NewMailboxAdapter(labelName string) *MailboxAdapter {
	return &MailboxAdapter{
		processedLabel: labelName,
		labelCache:     NewTTLCache(30 * time.Minute),
	}
}

func (a *MailboxAdapter) Name() models.TaskSource        { return models.SourceMailbox }
func (a *MailboxAdapter) DefaultLookback() time.Duration { return mailboxLookback }
func (a *MailboxAdapter) PageSize() int                  { return mailboxPageSize }

func (a *MailboxAdapter) service(ctx context.Context, auth AuthContext) (*gmail.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to build mailbox client: %w", err)
	}
	return svc, nil
}

// parseMailboxPosition converts a padded epoch-millis position back to a time.
func parseMailboxPosition(position string) (time.Time, bool) {
	millis, err := strconv.ParseInt(strings.TrimLeft(position, "0"), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// MailboxPosition renders an internal-date in the cursor's string ordering.
func MailboxPosition(internalDateMillis int64) string {
	return utils.PadPosition(internalDateMillis, positionPadWidth)
}

// ListNewItems lists message ids newer than the cursor window, excluding
// messages already carrying the processed label.
func (a *MailboxAdapter) ListNewItems(ctx context.Context, auth AuthContext, cursor *models.SyncCursor) ([]models.RawItem, error) {
	svc, err := a.service(ctx, auth)
	if err != nil {
		return nil, err
	}

	since := sinceTime(cursor, parseMailboxPosition, a.DefaultLookback())
	query := fmt.Sprintf("after:%d -label:%s", since.Unix(), a.processedLabel)

	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(int64(a.PageSize())).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("mailbox list failed: %w", asCredentialError(err))
	}

	items := make([]models.RawItem, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		items = append(items, models.RawItem{
			Source: models.SourceMailbox,
			ID:     msg.Id,
			Thread: msg.ThreadId,
		})
	}
	return items, nil
}

// FetchDetail loads the full message and extracts subject, sender and a
// capped plain-text body.
func (a *MailboxAdapter) FetchDetail(ctx context.Context, auth AuthContext, item models.RawItem) (models.RawItem, error) {
	svc, err := a.service(ctx, auth)
	if err != nil {
		return item, err
	}

	msg, err := svc.Users.Messages.Get("me", item.ID).Format("full").Context(ctx).Do()
	if err != nil {
		return item, fmt.Errorf("failed to fetch message %s: %w", item.ID, err)
	}

	item.Timestamp = time.UnixMilli(msg.InternalDate).UTC()
	item.Position = MailboxPosition(msg.InternalDate)

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				item.Subject = header.Value
			case "From":
				item.From = header.Value
			}
		}
		item.Body = utils.Truncate(extractMessageBody(msg.Payload), mailboxBodyCap)
	}
	// A message without a readable body still has its subject and snippet.
	if item.Body == "" {
		item.Body = msg.Snippet
	}
	return item, nil
}

// extractMessageBody walks the MIME tree for the first text/plain part.
func extractMessageBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBodyData(part.Body.Data)
	}
	for _, child := range part.Parts {
		if body := extractMessageBody(child); body != "" {
			return body
		}
	}
	// Fall back to the top-level body for single-part messages.
	if part.Body != nil && part.Body.Data != "" {
		return decodeBodyData(part.Body.Data)
	}
	return ""
}

// decodeBodyData decodes Gmail's web-safe base64 payloads, tolerating
// both padded and unpadded forms.
func decodeBodyData(data string) string {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

// MarkHandled applies the processed label to the message.
func (a *MailboxAdapter) MarkHandled(ctx context.Context, auth AuthContext, item models.RawItem) error {
	svc, err := a.service(ctx, auth)
	if err != nil {
		return err
	}

	labelID, err := a.ensureLabel(ctx, svc, auth.UserID)
	if err != nil {
		return err
	}

	_, err = svc.Users.Messages.Modify("me", item.ID, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to label message %s: %w", item.ID, err)
	}
	return nil
}

// ensureLabel resolves (or creates) the processed label, memoized per user.
func (a *MailboxAdapter) ensureLabel(ctx context.Context, svc *gmail.Service, userID string) (string, error) {
	if cached, ok := a.labelCache.Get(userID); ok {
		return cached.(string), nil
	}

	resp, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}
	for _, label := range resp.Labels {
		if label.Name == a.processedLabel {
			a.labelCache.Set(userID, label.Id)
			return label.Id, nil
		}
	}

	created, err := svc.Users.Labels.Create("me", &gmail.Label{
		Name:                  a.processedLabel,
		LabelListVisibility:   "labelHide",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create processed label: %w", err)
	}
	a.labelCache.Set(userID, created.Id)
	return created.Id, nil
}
