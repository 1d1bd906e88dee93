package discord

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/framefeed/vidscribe/internal/log"
)

// AttachmentMeta is the catalog-facing view of one attachment.
type AttachmentMeta struct {
	Name      string
	URL       string
	Size      int64
	Width     int
	Height    int
	IsImage   bool
	Extension string
}

// MessageMetadata captures everything the catalog entry for a processed
// chat message records.
type MessageMetadata struct {
	FetchedAt         string
	MessageID         string
	Author            string
	Date              string
	Server            string
	Channel           string
	Content           string
	MessageURL        string
	AttachedFiles     []AttachmentMeta
	OriginalMessageID string
	HasEmbeds         bool
	EmbedCount        int
	ImageCount        int
}

// FetchMessageData resolves a message URL into the message itself plus its
// catalog metadata. Channel and guild lookups are best-effort; a missing
// name degrades to a placeholder rather than failing the job.
func (c *Client) FetchMessageData(ctx context.Context, messageURL string) (*Message, *MessageMetadata, error) {
	guildID, channelID, messageID, err := ParseMessageURL(messageURL)
	if err != nil {
		return nil, nil, err
	}
	logger := log.FromContext(ctx)

	msg, err := c.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		return nil, nil, err
	}

	serverName := "Unknown Server"
	if g, err := c.FetchGuild(ctx, guildID); err != nil {
		logger.Warn().Err(err).Str("guild_id", guildID).Msg("guild lookup failed")
	} else if g.Name != "" {
		serverName = g.Name
	}

	channelName := "Unknown Channel"
	if ch, err := c.FetchChannel(ctx, channelID); err != nil {
		logger.Warn().Err(err).Str("channel_id", channelID).Msg("channel lookup failed")
	} else if ch.Name != "" {
		channelName = ch.Name
	}

	meta := &MessageMetadata{
		FetchedAt:  time.Now().UTC().Format(time.RFC3339),
		MessageID:  msg.ID,
		Author:     formatAuthor(msg),
		Date:       msg.Timestamp,
		Server:     serverName,
		Channel:    channelName,
		Content:    msg.Content,
		MessageURL: messageURL,
		HasEmbeds:  len(msg.Embeds) > 0,
		EmbedCount: len(msg.Embeds),
	}
	if meta.Content == "" {
		meta.Content = "[No text content]"
	}
	if msg.ReferencedMessage != nil {
		meta.OriginalMessageID = msg.ReferencedMessage.ID
	}

	for _, att := range msg.Attachments {
		isImage := strings.HasPrefix(att.ContentType, "image/")
		meta.AttachedFiles = append(meta.AttachedFiles, AttachmentMeta{
			Name:      att.Filename,
			URL:       att.URL,
			Size:      att.Size,
			Width:     att.Width,
			Height:    att.Height,
			IsImage:   isImage,
			Extension: filepath.Ext(att.Filename),
		})
		if isImage {
			meta.ImageCount++
		}
	}

	logger.Info().
		Str("author", meta.Author).
		Int("attachments", len(meta.AttachedFiles)).
		Msg("message metadata fetched")
	return msg, meta, nil
}

// formatAuthor renders "@name" or legacy "@name#1234".
func formatAuthor(msg *Message) string {
	name := "@" + msg.Author.Username
	if d := msg.Author.Discriminator; d != "" && d != "0" {
		name += "#" + d
	}
	return name
}
