package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
)

// Acquirer runs the external extractor and transcoder tools against a
// scratch directory. One instance per worker; safe for sequential use.
type Acquirer struct {
	cfg     *config.Config
	scratch string
}

// NewAcquirer creates the scratch directory if needed.
func NewAcquirer(cfg *config.Config) (*Acquirer, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", cfg.ScratchDir, err)
	}
	return &Acquirer{cfg: cfg, scratch: cfg.ScratchDir}, nil
}

// ScratchDir returns the directory downloads are written to.
func (a *Acquirer) ScratchDir() string { return a.scratch }

// spoofArgs returns the client-spoofing flags shared by every extractor
// invocation. The android/ios/tv client list avoids SABR-only web players.
func (a *Acquirer) spoofArgs() []string {
	y := a.cfg.YTDLP
	return []string{
		"--retries", strconv.Itoa(y.Retries),
		"--fragment-retries", strconv.Itoa(y.FragmentRetries),
		"--socket-timeout", strconv.Itoa(y.SocketTimeout),
		"--force-ipv4",
		"--extractor-args", "youtube:player_client=android,ios,tv;player_skip=web_safari,web",
		"--user-agent", y.UserAgent,
		"--add-headers", "Accept-Language:" + y.AcceptLanguage,
	}
}

// probePayload is the subset of the extractor's JSON dump we consume.
type probePayload struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Channel      string  `json:"channel"`
	Uploader     string  `json:"uploader"`
	UploadDate   string  `json:"upload_date"`
	Duration     float64 `json:"duration"`
	Availability string  `json:"availability"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
}

// ProbeInfo runs the extractor in info-only mode and builds a VideoInfo.
func (a *Acquirer) ProbeInfo(ctx context.Context, videoURL string) (*VideoInfo, error) {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--skip-download",
		"--dump-single-json",
	}
	args = append(args, a.spoofArgs()...)
	args = append(args, videoURL)

	cmd := exec.CommandContext(ctx, a.cfg.YTDLP.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &PipelineError{Stage: "extractor", Stderr: stderr.String(), Err: err}
	}

	var p probePayload
	if err := json.Unmarshal(stdout.Bytes(), &p); err != nil {
		return nil, fmt.Errorf("parse extractor metadata: %w", err)
	}
	channel := p.Channel
	if channel == "" {
		channel = p.Uploader
	}

	info := &VideoInfo{
		URL:          videoURL,
		ID:           p.ID,
		Title:        p.Title,
		SafeTitle:    Sanitize(p.Title),
		Channel:      channel,
		UploadDate:   normalizeUploadDate(p.UploadDate),
		Duration:     p.Duration,
		Availability: p.Availability,
		Width:        p.Width,
		Height:       p.Height,
	}

	log.FromContext(ctx).Info().
		Str("title", info.Title).
		Str("video_id", info.ID).
		Str("channel", info.Channel).
		Str("upload_date", info.UploadDate).
		Float64("duration_s", info.Duration).
		Str("availability", info.Availability).
		Msg("video metadata resolved")

	return info, nil
}
