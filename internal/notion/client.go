// Package notion is a typed layer over the catalog's REST API. Column names
// are never hard-coded here or in the coordinator; they arrive through a
// per-channel field map.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
)

// Client issues catalog requests under a shared rate limit. The API allows
// an average of three requests per second per integration.
type Client struct {
	http    *http.Client
	token   string
	baseURL string
	limiter *rate.Limiter

	videosDBID       string
	driveUploadsDBID string
}

// NewClient builds a catalog client from the loaded configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		http:             &http.Client{Timeout: 30 * time.Second},
		token:            cfg.Notion.Token,
		baseURL:          defaultBaseURL,
		limiter:          rate.NewLimiter(3, 3),
		videosDBID:       cfg.Notion.VideosDBID,
		driveUploadsDBID: cfg.Notion.DriveUploadsDBID,
	}
}

// RichText is one rich-text fragment of a property value.
type RichText struct {
	Type string `json:"type,omitempty"`
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
	PlainText string `json:"plain_text,omitempty"`
}

// SelectValue is a select property's chosen option.
type SelectValue struct {
	Name string `json:"name"`
}

// DateValue is a date property's value; only Start is used.
type DateValue struct {
	Start string `json:"start"`
}

// FileRef is one external file attached to a files property.
type FileRef struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	External struct {
		URL string `json:"url"`
	} `json:"external"`
}

// Property is the typed wire form of one page property.
type Property struct {
	Type     string       `json:"type,omitempty"`
	Title    []RichText   `json:"title,omitempty"`
	RichText []RichText   `json:"rich_text,omitempty"`
	URL      *string      `json:"url,omitempty"`
	Select   *SelectValue `json:"select,omitempty"`
	Date     *DateValue   `json:"date,omitempty"`
	Files    []FileRef    `json:"files,omitempty"`
	Number   *float64     `json:"number,omitempty"`
}

// Page is a catalog page reference with its property map.
type Page struct {
	ID         string              `json:"id"`
	URL        string              `json:"url"`
	Properties map[string]Property `json:"properties"`
}

// GetPage retrieves a page by id.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, "/pages/"+pageID, nil, &page); err != nil {
		return nil, fmt.Errorf("get page %s: %w", pageID, err)
	}
	return &page, nil
}

// CreatePage creates a page in a database with the given properties.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any) (*Page, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}
	var page Page
	if err := c.do(ctx, http.MethodPost, "/pages", body, &page); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	log.FromContext(ctx).Info().Str("page_url", page.URL).Msg("catalog page created")
	return &page, nil
}

// UpdateProperties patches the given properties on an existing page.
func (c *Client) UpdateProperties(ctx context.Context, pageID string, properties map[string]any) error {
	body := map[string]any{"properties": properties}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, nil); err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}
	return nil
}

// AppendBlocks appends child blocks to a page or block.
func (c *Client) AppendBlocks(ctx context.Context, blockID string, children []map[string]any) error {
	body := map[string]any{"children": children}
	if err := c.do(ctx, http.MethodPatch, "/blocks/"+blockID+"/children", body, nil); err != nil {
		return fmt.Errorf("append blocks to %s: %w", blockID, err)
	}
	return nil
}

type queryResult struct {
	Results []Page `json:"results"`
}

// QueryDatabase runs a filtered database query and returns matching pages.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any) ([]Page, error) {
	body := map[string]any{}
	if filter != nil {
		body["filter"] = filter
	}
	var res queryResult
	if err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body, &res); err != nil {
		return nil, fmt.Errorf("query database %s: %w", databaseID, err)
	}
	return res.Results, nil
}

// APIError is a non-2xx catalog response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API status %d: %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
