// Package drive is a thin client for the object store's v3 REST API:
// folder creation, existence probes and idempotent uploads. All operations
// are shared-drive aware.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	folderMIME = "application/vnd.google-apps.folder"
)

// File is an object-store file reference.
type File struct {
	ID             string
	Name           string
	ViewLink       string
	ParentFolderID string
}

// Client talks to the object store with a bearer token.
type Client struct {
	http       *http.Client
	token      string
	baseURL    string
	uploadURL  string
	maxRetries int
	retryDelay time.Duration
}

// NewClient builds a client from the loaded configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		http:       &http.Client{Timeout: 60 * time.Minute},
		token:      cfg.Drive.AccessToken,
		baseURL:    defaultBaseURL,
		uploadURL:  defaultUploadURL,
		maxRetries: cfg.Drive.UploadMaxRetries,
		retryDelay: cfg.Drive.UploadRetryDelay,
	}
}

// FolderURL renders the stable browser URL for a folder id.
func FolderURL(id string) string {
	return "https://drive.google.com/drive/folders/" + id
}

// ViewURL is the stable viewable link for a file id.
func ViewURL(id string) string {
	return "https://drive.google.com/file/d/" + id + "/view"
}

// CreateFolder creates a child folder under parentID and returns its id.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"name":     name,
		"mimeType": folderMIME,
		"parents":  []string{parentID},
	})

	u := c.baseURL + "/files?supportsAllDrives=true&fields=id"
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, u, "application/json", bytes.NewReader(body), &out); err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}

	log.FromContext(ctx).Info().Str("folder", name).Str("folder_id", out.ID).Msg("folder created")
	return out.ID, nil
}

// FileExists probes for a file by name within a folder, excluding trashed
// items. Probe errors degrade to "not found" so an upload still proceeds.
func (c *Client) FileExists(ctx context.Context, name, folderID string) (bool, string) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), folderID)

	u := c.baseURL + "/files?" + url.Values{
		"q":                         {query},
		"spaces":                    {"drive"},
		"fields":                    {"files(id, name)"},
		"supportsAllDrives":         {"true"},
		"includeItemsFromAllDrives": {"true"},
	}.Encode()

	var out struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, "", nil, &out); err != nil {
		log.FromContext(ctx).Warn().Err(err).Str("name", name).Msg("existence probe failed, assuming absent")
		return false, ""
	}
	if len(out.Files) == 0 {
		return false, ""
	}
	return true, out.Files[0].ID
}

// escapeQuery escapes the characters with meaning in a files.list query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (c *Client) doJSON(ctx context.Context, method, u, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-2xx object-store response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("drive API status %d: %s", e.Status, e.Body)
}

// retryable reports whether an upload attempt is worth repeating.
func retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true // transport-level fault
	}
	return se.Status == http.StatusTooManyRequests || se.Status >= 500
}
