package notion

import (
	"context"
	"strings"

	"github.com/framefeed/vidscribe/internal/log"
)

// Column names in the chat-message origin database.
const (
	colAuthor      = "Author"
	colDate        = "Date"
	colChannel     = "Channel"
	colContent     = "Content"
	colAttachedURL = "Attached URL"
	colMessageURL  = "Message URL"
	colTranscript  = "Transcript"
)

// DiscordEntry is the origin row a submission points at.
type DiscordEntry struct {
	PageID      string
	PageURL     string
	Author      string
	Date        string
	Channel     string
	Content     string
	AttachedURL string
	MessageURL  string
}

// GetDiscordMessageEntry reads the origin row and extracts the fields the
// pipeline needs.
func (c *Client) GetDiscordMessageEntry(ctx context.Context, pageID string) (*DiscordEntry, error) {
	page, err := c.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	props := page.Properties
	entry := &DiscordEntry{
		PageID:      pageID,
		PageURL:     page.URL,
		Author:      PlainTitle(props[colAuthor]),
		Date:        DateStart(props[colDate]),
		Channel:     SelectName(props[colChannel]),
		Content:     PlainText(props[colContent]),
		AttachedURL: URLValue(props[colAttachedURL]),
		MessageURL:  URLValue(props[colMessageURL]),
	}

	log.FromContext(ctx).Info().
		Str("channel", entry.Channel).
		Str("attached_url", entry.AttachedURL).
		Msg("origin row loaded")
	return entry, nil
}

// UpdateTranscriptField writes the created page's URL back into the origin
// row's Transcript column.
func (c *Client) UpdateTranscriptField(ctx context.Context, pageID, pageURL string) error {
	return c.UpdateProperties(ctx, pageID, map[string]any{
		colTranscript: URLProperty(pageURL),
	})
}

// PageURLFromID renders the canonical page URL for a bare page id.
func PageURLFromID(pageID string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(pageID, "-", "")
}
