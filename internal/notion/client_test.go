package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/framefeed/vidscribe/internal/policy"
)

func newTestNotion(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		http:             srv.Client(),
		token:            "tok",
		baseURL:          srv.URL,
		limiter:          rate.NewLimiter(rate.Inf, 1),
		videosDBID:       "videos-db",
		driveUploadsDBID: "uploads-db",
	}
}

func TestCreatePage(t *testing.T) {
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("Notion-Version"))

		var body struct {
			Parent     map[string]string         `json:"parent"`
			Properties map[string]map[string]any `json:"properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "videos-db", body.Parent["database_id"])
		assert.Contains(t, body.Properties, "Name")

		w.Write([]byte(`{"id": "page1", "url": "https://www.notion.so/page1"}`))
	}))

	page, err := c.CreatePage(context.Background(), "videos-db", map[string]any{
		"Name": TitleProperty("2025-03-14 - Weekly"),
	})
	require.NoError(t, err)
	assert.Equal(t, "page1", page.ID)
	assert.Equal(t, "https://www.notion.so/page1", page.URL)
}

func TestUpdatePropertiesError(t *testing.T) {
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "validation_error"}`))
	}))

	err := c.UpdateProperties(context.Background(), "page1", map[string]any{"Status": SelectProperty("Complete")})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestFindByURLChecksBothDatabases(t *testing.T) {
	var queried []string
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		dbID := parts[2]
		queried = append(queried, dbID)

		var body struct {
			Filter struct {
				Property string `json:"property"`
				URL      struct {
					Equals string `json:"equals"`
				} `json:"url"`
			} `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, urlColumn, body.Filter.Property)
		assert.Equal(t, "https://youtu.be/abc", body.Filter.URL.Equals)

		if dbID == "videos-db" {
			w.Write([]byte(`{"results": []}`))
			return
		}
		w.Write([]byte(`{"results": [{
			"id": "hit1",
			"url": "https://www.notion.so/hit1",
			"properties": {
				"Transcript File": {"type": "files", "files": [{"name": "Transcript.txt", "external": {"url": "http://x"}}]},
				"Transcript SRT File": {"type": "files", "files": []}
			}
		}]}`))
	}))

	match, err := c.FindByURL(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, []string{"videos-db", "uploads-db"}, queried)
	assert.Equal(t, "hit1", match.Page.ID)
	assert.Equal(t, "uploads-db", match.DatabaseID)
	assert.True(t, match.HasTranscript)
}

func TestFindByURLNoMatch(t *testing.T) {
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	match, err := c.FindByURL(context.Background(), "https://youtu.be/none")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestGetDiscordMessageEntry(t *testing.T) {
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages/entry1", r.URL.Path)
		w.Write([]byte(`{
			"id": "entry1",
			"url": "https://www.notion.so/entry1",
			"properties": {
				"Author": {"type": "title", "title": [{"text": {"content": "@auditor"}}]},
				"Date": {"type": "date", "date": {"start": "2025-03-14"}},
				"Channel": {"type": "select", "select": {"name": "audit-process"}},
				"Content": {"type": "rich_text", "rich_text": [{"text": {"content": "weekly call"}}]},
				"Attached URL": {"type": "url", "url": "https://youtu.be/abc"},
				"Message URL": {"type": "url", "url": "https://discord.com/channels/1/2/3"}
			}
		}`))
	}))

	entry, err := c.GetDiscordMessageEntry(context.Background(), "entry1")
	require.NoError(t, err)
	assert.Equal(t, "@auditor", entry.Author)
	assert.Equal(t, "2025-03-14", entry.Date)
	assert.Equal(t, "audit-process", entry.Channel)
	assert.Equal(t, "weekly call", entry.Content)
	assert.Equal(t, "https://youtu.be/abc", entry.AttachedURL)
	assert.Equal(t, "https://discord.com/channels/1/2/3", entry.MessageURL)
}

func TestAppendTranscriptToggle(t *testing.T) {
	var captured map[string]any
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/blocks/page1/children", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{}`))
	}))

	require.NoError(t, c.AppendTranscriptToggle(context.Background(), "page1", "hello world"))

	children := captured["children"].([]any)
	require.Len(t, children, 1)
	toggle := children[0].(map[string]any)
	assert.Equal(t, "toggle", toggle["type"])

	inner := toggle["toggle"].(map[string]any)
	title := inner["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"]
	assert.Equal(t, "Transcript", title)
	paragraphs := inner["children"].([]any)
	require.Len(t, paragraphs, 1)
}

func TestAppendTranscriptToggleEmptyTextIsNoop(t *testing.T) {
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected for empty transcript")
	}))
	assert.NoError(t, c.AppendTranscriptToggle(context.Background(), "page1", "   "))
}

func TestRateLimiterIsApplied(t *testing.T) {
	c := newTestNotion(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"id": "p", "url": "u"}`))
	}))
	c.limiter = rate.NewLimiter(1000, 1)

	start := time.Now()
	for range 3 {
		_, err := c.GetPage(context.Background(), "p")
		require.NoError(t, err)
	}
	// Burst 1 at 1000 rps: the second and third calls each wait ~1ms.
	assert.GreaterOrEqual(t, time.Since(start), 1*time.Millisecond)
}

func TestPageURLFromID(t *testing.T) {
	assert.Equal(t, "https://www.notion.so/28bdaf66daf7816383e6ce8390b0a866",
		PageURLFromID("28bdaf66-daf7-8163-83e6-ce8390b0a866"))
}

func TestPropertyForFieldDispatch(t *testing.T) {
	field := func(key string) policy.Field {
		ft, ok := policy.TypeForKey(key)
		require.True(t, ok, key)
		return policy.Field{Key: key, Column: key, Type: ft}
	}

	p, ok := PropertyForField(field("name"), "A Title")
	require.True(t, ok)
	assert.Contains(t, p, "title")

	p, ok = PropertyForField(field("transcript_srt_file"), "http://drive/srt")
	require.True(t, ok)
	files := p["files"].([]map[string]any)
	assert.Equal(t, "Transcript.srt", files[0]["name"])

	p, ok = PropertyForField(field("transcript_file"), "http://drive/txt")
	require.True(t, ok)
	files = p["files"].([]map[string]any)
	assert.Equal(t, "Transcript.txt", files[0]["name"])

	p, ok = PropertyForField(field("length_min"), 12.5)
	require.True(t, ok)
	assert.Equal(t, 12.5, p["number"])

	_, ok = PropertyForField(field("video_url"), "")
	assert.False(t, ok, "empty values are skipped")

	_, ok = PropertyForField(field("process_errors"), nil)
	assert.False(t, ok, "nil values are skipped")
}

func TestTextPropertyTruncates(t *testing.T) {
	long := strings.Repeat("x", 3000)
	p := TextProperty(long)
	rt := p["rich_text"].([]map[string]any)
	content := rt[0]["text"].(map[string]any)["content"].(string)
	assert.Len(t, content, maxTextLen)
}
