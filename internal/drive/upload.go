package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"

	"github.com/cenkalti/backoff/v5"

	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/metrics"
)

// Upload sends one file into a folder via the multipart upload endpoint,
// streaming the content from disk. Transient faults are retried with
// exponential backoff up to the configured attempt count.
func (c *Client) Upload(ctx context.Context, mf media.MediaFile, folderID string) (*File, error) {
	attempt := 0
	op := func() (*File, error) {
		attempt++
		f, err := c.uploadOnce(ctx, mf, folderID)
		if err == nil {
			return f, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		metrics.RecordUploadAttempt("retried")
		log.FromContext(ctx).Warn().Err(err).
			Int("attempt", attempt).
			Str("file", mf.Filename).
			Msg("upload attempt failed, backing off")
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryDelay

	f, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
	)
	if err != nil {
		metrics.RecordUploadAttempt("failed")
		return nil, fmt.Errorf("upload %s: %w", mf.Filename, err)
	}
	metrics.RecordUploadAttempt("ok")
	return f, nil
}

// UploadIfAbsent uploads only when no file of the same name exists in the
// folder; idempotent by filename.
func (c *Client) UploadIfAbsent(ctx context.Context, mf media.MediaFile, folderID string) (bool, *File, error) {
	if exists, id := c.FileExists(ctx, mf.Filename, folderID); exists {
		log.FromContext(ctx).Info().Str("file", mf.Filename).Str("file_id", id).Msg("file already archived, skipping upload")
		metrics.RecordUploadAttempt("skipped")
		return false, &File{ID: id, Name: mf.Filename, ViewLink: ViewURL(id), ParentFolderID: folderID}, nil
	}

	f, err := c.Upload(ctx, mf, folderID)
	if err != nil {
		return false, nil, err
	}
	return true, f, nil
}

func (c *Client) uploadOnce(ctx context.Context, mf media.MediaFile, folderID string) (*File, error) {
	src, err := os.Open(mf.Path)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		meta, _ := json.Marshal(map[string]any{
			"name":    mf.Filename,
			"parents": []string{folderID},
		})

		metaHdr := textproto.MIMEHeader{}
		metaHdr.Set("Content-Type", "application/json; charset=UTF-8")
		part, err := mw.CreatePart(metaHdr)
		if err == nil {
			_, err = part.Write(meta)
		}
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		fileHdr := textproto.MIMEHeader{}
		fileHdr.Set("Content-Type", "application/octet-stream")
		part, err = mw.CreatePart(fileHdr)
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	u := c.uploadURL + "/files?uploadType=multipart&supportsAllDrives=true&fields=id,webViewLink"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(msg)}
	}

	var out struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	link := out.WebViewLink
	if link == "" {
		link = ViewURL(out.ID)
	}

	log.FromContext(ctx).Info().
		Str("file", mf.Filename).
		Str("file_id", out.ID).
		Msg("file uploaded")

	return &File{ID: out.ID, Name: mf.Filename, ViewLink: link, ParentFolderID: folderID}, nil
}
