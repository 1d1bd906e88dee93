// Package discord fetches chat messages over the platform's REST API and
// streams video attachments from its CDN. It authenticates with a user
// token, matching how the submitting automation account operates.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/framefeed/vidscribe/internal/log"
)

const defaultBaseURL = "https://discord.com/api/v10"

var messageURLPattern = regexp.MustCompile(`^https?://discord\.com/channels/(\d+)/(\d+)/(\d+)`)

// IsMessageURL reports whether the URL has the chat-message shape. Pure
// predicate, shared with webhook validation.
func IsMessageURL(url string) bool {
	return messageURLPattern.MatchString(url)
}

// ParseMessageURL extracts (guild, channel, message) ids from a message URL.
func ParseMessageURL(url string) (guildID, channelID, messageID string, err error) {
	m := messageURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", "", fmt.Errorf("invalid chat message URL: %s", url)
	}
	return m[1], m[2], m[3], nil
}

// APIError is a non-2xx response from the platform API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API status %d: %s", e.Status, e.Body)
}

// Client is a thin typed layer over the REST API.
type Client struct {
	http    *http.Client
	token   string
	baseURL string
}

// NewClient builds a client with a bounded request timeout. Attachment
// downloads use their own longer deadline.
func NewClient(token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		token:   token,
		baseURL: defaultBaseURL,
	}
}

// Message is the subset of the message object we consume.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		Username      string `json:"username"`
		Discriminator string `json:"discriminator"`
	} `json:"author"`
	Attachments       []Attachment      `json:"attachments"`
	Embeds            []json.RawMessage `json:"embeds"`
	ReferencedMessage *struct {
		ID string `json:"id"`
	} `json:"referenced_message"`
}

// Attachment is one uploaded file on a message.
type Attachment struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`
}

// Channel is the subset of the channel object we consume.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Guild is the subset of the guild object we consume.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FetchMessage retrieves one message by channel and message id.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	var msg Message
	url := fmt.Sprintf("%s/channels/%s/messages/%s", c.baseURL, channelID, messageID)
	if err := c.getJSON(ctx, url, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchChannel retrieves channel metadata. Failures are the caller's to
// downgrade; the message itself is the load-bearing fetch.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	if err := c.getJSON(ctx, fmt.Sprintf("%s/channels/%s", c.baseURL, channelID), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// FetchGuild retrieves guild metadata.
func (c *Client) FetchGuild(ctx context.Context, guildID string) (*Guild, error) {
	var g Guild
	if err := c.getJSON(ctx, fmt.Sprintf("%s/guilds/%s", c.baseURL, guildID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.FromContext(ctx).Warn().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("discord API request failed")
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
