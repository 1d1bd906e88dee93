// Package artifact turns accumulated transcription output into the files
// that get archived: a plain-text transcript and an SRT subtitle track.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/transcribe"
)

// WriteTranscript writes the plain text transcript: UTF-8, trailing
// whitespace trimmed, no BOM. The write is atomic.
func WriteTranscript(dir, baseName, text string) (media.MediaFile, error) {
	path := filepath.Join(dir, baseName+".txt")
	content := strings.TrimRight(text, " \t\r\n")
	if err := renameio.WriteFile(path, []byte(content), os.FileMode(0o644)); err != nil {
		return media.MediaFile{}, fmt.Errorf("write transcript: %w", err)
	}
	return media.NewMediaFile(path, media.KindText), nil
}

// WriteSRT writes the subtitle file from timed segments, numbered from 1
// with a blank line between entries.
func WriteSRT(dir, baseName string, segments []transcribe.Segment) (media.MediaFile, error) {
	path := filepath.Join(dir, baseName+".srt")

	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", Timestamp(seg.Start), Timestamp(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}

	if err := renameio.WriteFile(path, []byte(b.String()), os.FileMode(0o644)); err != nil {
		return media.MediaFile{}, fmt.Errorf("write subtitles: %w", err)
	}
	return media.NewMediaFile(path, media.KindSubtitles), nil
}

// Timestamp renders seconds in the SRT form HH:MM:SS,mmm.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	ms := int((seconds - float64(whole)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// TextFromSRT strips indices and timing lines from SRT content, returning
// the bare spoken text. Used when a transcript has to be reconstructed from
// an already-archived subtitle file.
func TextFromSRT(srt string) string {
	var parts []string
	for _, line := range strings.Split(srt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isIndexLine(line) || strings.Contains(line, "-->") {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

func isIndexLine(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
