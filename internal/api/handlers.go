package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framefeed/vidscribe/internal/discord"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/metrics"
	"github.com/framefeed/vidscribe/internal/queue"
)

const secretHeader = "X-Webhook-Secret"

// videoHostPattern recognizes the supported video-host URL shapes.
var videoHostPattern = regexp.MustCompile(
	`^https?://(www\.|m\.)?(youtube\.com/(watch\?v=|shorts/|live/|embed/)[\w-]+|youtu\.be/[\w-]+)`)

// IsVideoHostURL reports whether the URL has the video-host shape. Pure.
func IsVideoHostURL(url string) bool {
	return videoHostPattern.MatchString(url)
}

// webhookBody is the submission payload. Legacy field names are accepted as
// aliases and canonicalized immediately.
type webhookBody struct {
	NotionPageID      string `json:"notion_page_id"`
	DiscordEntryID    string `json:"discord_entry_id"` // legacy alias
	VideoURL          string `json:"video_url"`
	YouTubeURL        string `json:"youtube_url"` // legacy alias
	ChannelName       string `json:"channel_name"`
	Channel           string `json:"channel"` // legacy alias
	ParentDriveFolder string `json:"parent_drive_folder_id"`
}

func (b *webhookBody) canonical() (pageID, videoURL, channel string) {
	pageID = b.NotionPageID
	if pageID == "" {
		pageID = b.DiscordEntryID
	}
	videoURL = b.VideoURL
	if videoURL == "" {
		videoURL = b.YouTubeURL
	}
	channel = b.ChannelName
	if channel == "" {
		channel = b.Channel
	}
	return pageID, videoURL, channel
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if _, err := s.broker.Depth(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"service":   serviceName,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleWebhook validates and enqueues one submission. The handler returns
// only after the broker has durably accepted the job.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		metrics.RecordWebhook("invalid")
		writeError(w, http.StatusUnprocessableEntity, "request body is not valid JSON")
		return
	}

	pageID, videoURL, channel := body.canonical()
	if msg := s.validate(pageID, videoURL, channel); msg != "" {
		metrics.RecordWebhook("invalid")
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	kind := queue.KindVideoHost
	if discord.IsMessageURL(videoURL) {
		kind = queue.KindChatAttachment
	}

	sub := queue.Submission{
		Kind:           kind,
		VideoURL:       videoURL,
		ChannelName:    channel,
		DiscordEntryID: pageID,
		ParentFolderID: body.ParentDriveFolder,
	}
	jobID, err := s.broker.Enqueue(r.Context(), sub)
	if err != nil {
		metrics.RecordWebhook("error")
		log.WithComponent("api").Error().Err(err).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to queue the job")
		return
	}

	metrics.RecordWebhook("accepted")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "queued",
		"message":   "video processing job accepted",
		"task_id":   jobID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"channel_name": channel,
			"video_url":    videoURL,
			"kind":         string(kind),
		},
	})
}

// validate applies the webhook rules and returns an error message, empty on
// success.
func (s *Server) validate(pageID, videoURL, channel string) string {
	var missing []string
	if pageID == "" {
		missing = append(missing, "notion_page_id")
	}
	if videoURL == "" {
		missing = append(missing, "video_url")
	}
	if channel == "" {
		missing = append(missing, "channel_name")
	}
	if len(missing) > 0 {
		return "missing required fields: " + strings.Join(missing, ", ")
	}
	if _, ok := s.policies.Lookup(channel); !ok {
		return "unknown channel: " + channel
	}
	if !IsVideoHostURL(videoURL) && !discord.IsMessageURL(videoURL) {
		return "video_url is neither a video-host URL nor a chat-message URL"
	}
	return ""
}

// authorize enforces the shared secret when one is configured. 401 for a
// missing header, 403 for a wrong one.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	secret := s.cfg.Webhook.Secret
	if secret == "" {
		return true
	}
	got := r.Header.Get(secretHeader)
	if got == "" {
		metrics.RecordWebhook("unauthorized")
		writeError(w, http.StatusUnauthorized, "missing "+secretHeader+" header")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		metrics.RecordWebhook("forbidden")
		writeError(w, http.StatusForbidden, "invalid webhook secret")
		return false
	}
	return true
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	st, err := s.broker.StatusOf(r.Context(), jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "unknown task id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	resp := map[string]any{
		"task_id": jobID,
		"status":  lifecycleName(st.State),
	}
	if st.Result != "" {
		resp["result"] = json.RawMessage(st.Result)
	}
	if st.Error != "" {
		resp["error"] = st.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTestTask enqueues a no-op smoke job, for verifying the
// intake→queue→worker path end to end.
func (s *Server) handleTestTask(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	jobID, err := s.broker.Enqueue(r.Context(), queue.Submission{Kind: queue.KindSmoke})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to queue the job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "queued",
		"task_id":   jobID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// lifecycleName maps broker states onto the public lifecycle vocabulary.
func lifecycleName(state queue.State) string {
	switch state {
	case queue.StateQueued:
		return "pending"
	case queue.StateRunning:
		return "running"
	case queue.StateDone:
		return "succeeded"
	case queue.StateFailed:
		return "failed"
	case queue.StateRetrying:
		return "retrying"
	}
	return string(state)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"status": "error", "message": msg})
}
