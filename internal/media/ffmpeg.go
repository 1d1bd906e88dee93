package media

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/framefeed/vidscribe/internal/log"
)

// ExtractAudio decodes the audio track of a video into an mp3 next to it.
func (a *Acquirer) ExtractAudio(ctx context.Context, videoPath string) (MediaFile, error) {
	out := trimExt(videoPath) + ".mp3"
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", a.cfg.Compression.AudioBitrate,
		out,
	}
	if err := a.runTranscoder(ctx, args); err != nil {
		return MediaFile{}, err
	}
	log.FromContext(ctx).Info().Str("path", out).Msg("audio extracted")
	return NewMediaFile(out, KindAudio), nil
}

// CompressVideo re-encodes a video in one pass: H.264 at the configured
// CRF/preset, frame rate capped at 30, AAC audio, moov atom at the head.
// Returns the compressed path; the caller decides what to do with the
// original.
func (a *Acquirer) CompressVideo(ctx context.Context, videoPath string) (string, error) {
	out := trimExt(videoPath) + "_compressed.mp4"
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(a.cfg.Compression.CRF),
		"-preset", a.cfg.Compression.Preset,
		"-vf", "fps=fps='min(source_fps,30)'",
		"-c:a", "aac",
		"-b:a", a.cfg.Compression.AudioBitrate,
		"-movflags", "+faststart",
		out,
	}
	if err := a.runTranscoder(ctx, args); err != nil {
		return "", err
	}
	log.FromContext(ctx).Info().Str("path", out).Msg("video compressed")
	return out, nil
}

// ConvertMKVToMP4 remuxes a matroska file into an mp4 via codec copy.
func (a *Acquirer) ConvertMKVToMP4(ctx context.Context, mkvPath string) (string, error) {
	if !strings.HasSuffix(mkvPath, ".mkv") {
		return mkvPath, nil
	}
	out := trimExt(mkvPath) + ".mp4"
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", mkvPath,
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	}
	if err := a.runTranscoder(ctx, args); err != nil {
		return "", err
	}
	log.FromContext(ctx).Info().Str("path", out).Msg("container remuxed to mp4")
	return out, nil
}

func (a *Acquirer) runTranscoder(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &PipelineError{Stage: "transcoder", Stderr: stderr.String(), Err: err}
	}
	return nil
}

func trimExt(path string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndex(path, "/") {
		return path[:i]
	}
	return path
}
