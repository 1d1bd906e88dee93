package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/media"
)

// videoMIMEs are the attachment content types treated as video.
var videoMIMEs = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-matroska": true,
	"video/webm":       true,
	"video/x-msvideo":  true,
	"video/x-flv":      true,
	"video/x-m4v":      true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".webm": true, ".flv": true, ".m4v": true,
}

// FindVideoAttachment returns the first video attachment of a message, or
// nil. Content type decides; the extension is a fallback for CDN uploads
// that carry none.
func FindVideoAttachment(msg *Message) *Attachment {
	for i := range msg.Attachments {
		att := &msg.Attachments[i]
		if videoMIMEs[strings.ToLower(att.ContentType)] {
			return att
		}
		if att.ContentType == "" && videoExts[strings.ToLower(filepath.Ext(att.Filename))] {
			return att
		}
	}
	return nil
}

// DownloadAttachment streams an attachment from the CDN into destDir with
// chunked writes and an atomic final rename. Large recordings never pass
// through memory whole.
func (c *Client) DownloadAttachment(ctx context.Context, att *Attachment, destDir string) (media.MediaFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return media.MediaFile{}, err
	}

	// CDN downloads of multi-GB files need a deadline of their own, not
	// the API client's 10s.
	dl := &http.Client{Timeout: 30 * time.Minute}
	resp, err := dl.Do(req)
	if err != nil {
		return media.MediaFile{}, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return media.MediaFile{}, &APIError{Status: resp.StatusCode, Body: "attachment download failed"}
	}

	destPath := filepath.Join(destDir, media.Sanitize(strings.TrimSuffix(att.Filename, filepath.Ext(att.Filename)))+filepath.Ext(att.Filename))
	pending, err := renameio.NewPendingFile(destPath)
	if err != nil {
		return media.MediaFile{}, err
	}
	defer pending.Cleanup() //nolint:errcheck

	written, err := io.Copy(pending, resp.Body)
	if err != nil {
		return media.MediaFile{}, fmt.Errorf("stream attachment: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return media.MediaFile{}, err
	}

	log.FromContext(ctx).Info().
		Str("path", destPath).
		Int64("bytes", written).
		Msg("attachment downloaded")

	return media.NewMediaFile(destPath, media.KindVideo), nil
}
