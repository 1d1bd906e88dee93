package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/framefeed/vidscribe/internal/log"
)

// Codec-pinned format chain: AVC1 video with MP4A audio when available, an
// already-muxed mp4 otherwise, anything as a last resort.
const videoFormat = "bv*[vcodec*=avc1]+ba[acodec*=mp4a]/b[ext=mp4]/b"

var containerExts = []string{"mp4", "mkv", "webm", "avi", "mov"}

// DownloadVideo fetches the full video as an mp4 into scratch. This is the
// sequential fallback path used when the streamed pipeline fails.
func (a *Acquirer) DownloadVideo(ctx context.Context, info *VideoInfo) (MediaFile, error) {
	base := info.BaseName()
	template := filepath.Join(a.scratch, base+".%(ext)s")

	args := []string{
		"--quiet",
		"--no-warnings",
		"-f", videoFormat,
		"--merge-output-format", "mp4",
		"-o", template,
	}
	args = append(args, a.spoofArgs()...)
	args = append(args, info.URL)

	if err := a.runExtractor(ctx, args); err != nil {
		return MediaFile{}, err
	}

	// The merger does not always land on mp4; normalize the extension.
	for _, ext := range containerExts {
		candidate := filepath.Join(a.scratch, fmt.Sprintf("%s.%s", base, ext))
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if ext != "mp4" {
			renamed := filepath.Join(a.scratch, base+".mp4")
			if err := os.Rename(candidate, renamed); err != nil {
				return MediaFile{}, fmt.Errorf("rename downloaded video: %w", err)
			}
			candidate = renamed
		}
		log.FromContext(ctx).Info().Str("path", candidate).Msg("video downloaded")
		return NewMediaFile(candidate, KindVideo), nil
	}
	return MediaFile{}, fmt.Errorf("downloaded video not found for %s", info.URL)
}

// DownloadAudio fetches an mp3 of the audio track into scratch.
func (a *Acquirer) DownloadAudio(ctx context.Context, info *VideoInfo) (MediaFile, error) {
	base := info.BaseName()
	template := filepath.Join(a.scratch, base+".%(ext)s")

	args := []string{
		"--quiet",
		"--no-warnings",
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "192",
		"-o", template,
	}
	args = append(args, a.spoofArgs()...)
	args = append(args, info.URL)

	if err := a.runExtractor(ctx, args); err != nil {
		return MediaFile{}, err
	}

	path := filepath.Join(a.scratch, base+".mp3")
	if _, err := os.Stat(path); err != nil {
		return MediaFile{}, fmt.Errorf("downloaded audio not found for %s", info.URL)
	}
	log.FromContext(ctx).Info().Str("path", path).Msg("audio downloaded")
	return NewMediaFile(path, KindAudio), nil
}

func (a *Acquirer) runExtractor(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.cfg.YTDLP.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &PipelineError{Stage: "extractor", Stderr: stderr.String(), Err: err}
	}
	return nil
}
