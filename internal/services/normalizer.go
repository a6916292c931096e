package services

import (
	"fmt"
	"strings"

	"taskharvest/internal/models"
	"taskharvest/internal/utils"
)

// contentCap bounds the normalized text embedded into a prompt, per source.
func contentCap(source models.TaskSource) int {
	switch source {
	case models.SourceChat:
		return 800
	case models.SourceCalendar:
		return 1200
	default:
		return 4000
	}
}

// blockPrefix renders a block type as a lightweight text prefix so the
// extractor keeps structural hints without needing a rich-text grammar.
func blockPrefix(block models.Block) string {
	switch block.Type {
	case "heading", "heading_1", "heading_2", "heading_3":
		return "# "
	case "to_do":
		if block.Checked {
			return "[x] "
		}
		return "[ ] "
	case "quote":
		return "> "
	case "bulleted_list_item", "numbered_list_item":
		return "- "
	default:
		return ""
	}
}

func flattenBlocks(blocks []models.Block) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Text == "" {
			continue
		}
		sb.WriteString(blockPrefix(block))
		sb.WriteString(block.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Normalize renders one raw item as a single flat text block suitable for
// a prompt, matched exhaustively per source. Returns "" when the item has
// no analyzable content.
func Normalize(item models.RawItem) string {
	var text string
	switch item.Source {
	case models.SourceMailbox:
		text = fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", item.Subject, item.From, item.Body)
		if strings.TrimSpace(item.Subject) == "" && strings.TrimSpace(item.Body) == "" {
			return ""
		}
	case models.SourceChat:
		if strings.TrimSpace(item.Body) == "" {
			return ""
		}
		channel := item.ChannelName
		if channel == "" {
			channel = item.ChannelID
		}
		text = fmt.Sprintf("Channel: #%s\nFrom: %s\n\n%s", channel, item.Sender, item.Body)
	case models.SourceWiki:
		body := flattenBlocks(item.Blocks)
		if strings.TrimSpace(body) == "" {
			return ""
		}
		text = fmt.Sprintf("Page: %s\n\n%s", item.Title, body)
	case models.SourceMeeting:
		body := flattenBlocks(item.Blocks)
		if strings.TrimSpace(body) == "" {
			return ""
		}
		text = fmt.Sprintf("Meeting: %s\n\n%s", item.Title, body)
	case models.SourceCalendar:
		if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.Body) == "" {
			return ""
		}
		when := ""
		if !item.Timestamp.IsZero() {
			when = item.Timestamp.UTC().Format("2006-01-02 15:04 MST")
		}
		text = fmt.Sprintf("Event: %s\nWhen: %s\n\n%s", item.Title, when, item.Body)
	default:
		// Manual and voice items never enter the sync pipeline.
		return ""
	}
	return utils.Truncate(text, contentCap(item.Source))
}
