// Package coordinator runs the per-job state machine: duplicate probe,
// folder creation, streamed acquire+transcribe with a sequential fallback,
// artifact assembly, atomic upload, catalog publication and scratch cleanup.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/discord"
	"github.com/framefeed/vidscribe/internal/drive"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/metrics"
	"github.com/framefeed/vidscribe/internal/notion"
	"github.com/framefeed/vidscribe/internal/policy"
	"github.com/framefeed/vidscribe/internal/queue"
	"github.com/framefeed/vidscribe/internal/transcribe"
)

// Catalog is the slice of the catalog client the coordinator needs.
type Catalog interface {
	FindByURL(ctx context.Context, videoURL string) (*notion.Match, error)
	CreatePage(ctx context.Context, databaseID string, properties map[string]any) (*notion.Page, error)
	UpdateProperties(ctx context.Context, pageID string, properties map[string]any) error
	AppendTranscriptToggle(ctx context.Context, pageID, text string) error
	GetDiscordMessageEntry(ctx context.Context, pageID string) (*notion.DiscordEntry, error)
	UpdateTranscriptField(ctx context.Context, pageID, pageURL string) error
}

// Store is the slice of the object-store client the coordinator needs.
type Store interface {
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadIfAbsent(ctx context.Context, mf media.MediaFile, folderID string) (bool, *drive.File, error)
}

// Chat is the slice of the chat-platform client the coordinator needs.
type Chat interface {
	FetchMessageData(ctx context.Context, messageURL string) (*discord.Message, *discord.MessageMetadata, error)
	DownloadAttachment(ctx context.Context, att *discord.Attachment, destDir string) (media.MediaFile, error)
}

// mediaOps is the acquirer surface used outside the streamed pipeline.
type mediaOps interface {
	ScratchDir() string
	ProbeInfo(ctx context.Context, videoURL string) (*media.VideoInfo, error)
	DownloadVideo(ctx context.Context, info *media.VideoInfo) (media.MediaFile, error)
	DownloadAudio(ctx context.Context, info *media.VideoInfo) (media.MediaFile, error)
	ExtractAudio(ctx context.Context, videoPath string) (media.MediaFile, error)
	CompressVideo(ctx context.Context, videoPath string) (string, error)
	ConvertMKVToMP4(ctx context.Context, mkvPath string) (string, error)
}

// speech is the transcriber surface.
type speech interface {
	Transcribe(ctx context.Context, audioPath, language string) (*transcribe.Result, error)
	TranscribeStream(ctx context.Context, pcm io.Reader, language string, emit transcribe.EmitFunc) (*transcribe.Accumulator, error)
}

// streamOutcome is what the streamed acquire+transcribe step hands back.
type streamOutcome struct {
	VideoPath string
	Acc       *transcribe.Accumulator
	Warnings  string
}

// streamFunc runs the combined extractor→transcoder→model pipeline.
// Replaceable so the state machine is testable without child processes.
type streamFunc func(ctx context.Context, info *media.VideoInfo) (*streamOutcome, error)

// Coordinator binds the clients and tools for one worker. It is created
// fresh by the worker pool's handler factory, so per-worker state (scratch,
// HTTP clients) is bounded by the recycle interval.
type Coordinator struct {
	cfg      *config.Config
	policies *policy.Table
	catalog  Catalog
	store    Store
	chat     Chat
	media    mediaOps
	stt      speech
	stream   streamFunc
}

// New assembles a coordinator with live clients. The transcriber is passed
// in because the model handle outlives individual coordinators.
func New(cfg *config.Config, policies *policy.Table, stt *transcribe.Transcriber) (*Coordinator, error) {
	acq, err := media.NewAcquirer(cfg)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      cfg,
		policies: policies,
		catalog:  notion.NewClient(cfg),
		store:    drive.NewClient(cfg),
		chat:     discord.NewClient(cfg.DiscordToken),
		media:    acq,
		stt:      stt,
	}
	c.stream = func(ctx context.Context, info *media.VideoInfo) (*streamOutcome, error) {
		return c.streamAndTranscribe(ctx, acq, info)
	}
	return c, nil
}

// Result is the terminal payload recorded against the job.
type Result struct {
	Status         string  `json:"status"` // "success" or "skipped"
	Reason         string  `json:"reason,omitempty"`
	ProcessingMode string  `json:"processing_mode,omitempty"`
	PageID         string  `json:"page_id,omitempty"`
	PageURL        string  `json:"page_url,omitempty"`
	VideoURL       string  `json:"video_url,omitempty"`
	LengthMin      float64 `json:"length_min,omitempty"`
}

// Handle implements queue.Handler. Validation and permanent upstream faults
// are terminal; everything else is left retryable for the queue's backoff.
func (c *Coordinator) Handle(ctx context.Context, job *queue.Job) (string, error) {
	sub := job.Submission
	logger := log.FromContext(ctx)
	logger.Info().
		Str("channel", sub.ChannelName).
		Str("video_url", sub.VideoURL).
		Str("kind", string(sub.Kind)).
		Int("attempt", job.Attempt).
		Msg("job started")

	if sub.Kind == queue.KindSmoke {
		metrics.RecordJob("success", "smoke")
		return `{"status":"success","processing_mode":"smoke"}`, nil
	}

	pol, ok := c.policies.Lookup(sub.ChannelName)
	if !ok {
		metrics.RecordJob("failed", "none")
		return "", queue.Terminal(fmt.Errorf("no policy for channel %q", sub.ChannelName))
	}

	ladder := c.newStatusLadder(pol, sub.DiscordEntryID)

	var res *Result
	var err error
	switch sub.Kind {
	case queue.KindChatAttachment:
		res, err = c.processChatAttachment(ctx, &sub, pol, ladder)
	default:
		res, err = c.processVideoHost(ctx, &sub, pol, ladder)
	}

	if err != nil {
		ladder.Fail(ctx, err)
		metrics.RecordJob("failed", modeOf(res))
		if isPermanent(err) {
			return "", queue.Terminal(err)
		}
		return "", err
	}

	metrics.RecordJob(res.Status, modeOf(res))
	payload, mErr := json.Marshal(res)
	if mErr != nil {
		return "", mErr
	}
	logger.Info().Str("status", res.Status).Str("mode", res.ProcessingMode).Msg("job finished")
	return string(payload), nil
}

func modeOf(res *Result) string {
	if res == nil || res.ProcessingMode == "" {
		return "none"
	}
	return res.ProcessingMode
}

// phase wraps one state-machine step with a structured entry line and a
// duration observation.
func phase(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	log.FromContext(ctx).Info().Str("phase", name).Msg("phase entered")
	err := fn()
	metrics.ObservePhase(name, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// scratchSet tracks every scratch file a job touched so cleanup can run on
// any exit path.
type scratchSet struct {
	paths []string
}

func (s *scratchSet) add(path string) {
	if path == "" {
		return
	}
	for _, p := range s.paths {
		if p == path {
			return
		}
	}
	s.paths = append(s.paths, path)
}

func (s *scratchSet) cleanup(ctx context.Context) {
	logger := log.FromContext(ctx)
	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", p).Msg("scratch removal failed")
			continue
		}
	}
	s.paths = nil
}

// isPermanent reports whether an upstream fault cannot be fixed by retrying:
// authentication and not-found responses from any of the three services.
func isPermanent(err error) bool {
	var nErr *notion.APIError
	if errors.As(err, &nErr) {
		return permanentStatus(nErr.Status)
	}
	var dErr *discord.APIError
	if errors.As(err, &dErr) {
		return permanentStatus(dErr.Status)
	}
	var sErr *drive.StatusError
	if errors.As(err, &sErr) {
		return sErr.Status != http.StatusTooManyRequests && sErr.Status >= 400 && sErr.Status < 500
	}
	return false
}

func permanentStatus(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
