// Package media acquires source material: it probes and streams video-host
// URLs through an extractor/transcoder pipeline and provides the ffmpeg
// operations (audio extraction, one-pass compression, remux) used downstream.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Kind classifies a scratch artifact.
type Kind string

const (
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindText      Kind = "transcript-text"
	KindSubtitles Kind = "transcript-subtitles"
	KindLink      Kind = "link"
)

// VideoInfo is the metadata probe result for a video-host URL.
type VideoInfo struct {
	URL          string
	ID           string
	Title        string
	SafeTitle    string
	Channel      string
	UploadDate   string // YYYY-MM-DD
	Duration     float64
	Availability string
	Width        int
	Height       int
}

// BaseName returns the scratch filename stem: "YYYY-MM-DD - <safe title>".
func (v VideoInfo) BaseName() string {
	return fmt.Sprintf("%s - %s", v.UploadDate, v.SafeTitle)
}

// MediaFile is a scratch artifact on disk.
type MediaFile struct {
	Path     string
	Filename string
	Kind     Kind
}

// NewMediaFile builds a MediaFile from a path.
func NewMediaFile(path string, kind Kind) MediaFile {
	return MediaFile{Path: path, Filename: filepath.Base(path), Kind: kind}
}

// Exists reports whether the file is present on disk.
func (m MediaFile) Exists() bool {
	_, err := os.Stat(m.Path)
	return err == nil
}

// Sanitize replaces every rune outside letters, digits, space, dash and
// underscore with an underscore, making a title safe for filenames.
func Sanitize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// normalizeUploadDate converts the extractor's YYYYMMDD form to YYYY-MM-DD.
// An empty or unparsable value falls back to today.
func normalizeUploadDate(raw string) string {
	if t, err := time.Parse("20060102", raw); err == nil {
		return t.Format("2006-01-02")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format("2006-01-02")
	}
	return time.Now().Format("2006-01-02")
}
