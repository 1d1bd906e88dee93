package coordinator

import (
	"context"
	"strings"

	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/metrics"
	"github.com/framefeed/vidscribe/internal/notion"
	"github.com/framefeed/vidscribe/internal/policy"
)

// Status ladder values written while an update-existing job runs. The final
// success value comes from the policy's field map instead.
const (
	statusProcessing   = "Processing"
	statusDownloading  = "Downloading"
	statusTranscribing = "Transcribing"
	statusUploading    = "Uploading to Drive"
	statusError        = "Error"
)

// statusLadder writes progress into the origin row's status column. Every
// write is fire-and-forget: a status failure never fails the job.
type statusLadder struct {
	catalog   Catalog
	pageID    string
	statusCol string
	errorCol  string
	enabled   bool
}

func (c *Coordinator) newStatusLadder(pol policy.Policy, pageID string) *statusLadder {
	l := &statusLadder{catalog: c.catalog, pageID: pageID}
	if pol.Action != policy.ActionUpdateExisting || pageID == "" {
		return l
	}
	f, ok := pol.Field("status")
	if !ok {
		return l
	}
	l.statusCol = f.Column
	if ef, ok := pol.Field("process_errors"); ok {
		l.errorCol = ef.Column
	}
	l.enabled = true
	return l
}

// Set writes one ladder value, best-effort.
func (l *statusLadder) Set(ctx context.Context, value string) {
	if !l.enabled {
		return
	}
	err := l.catalog.UpdateProperties(ctx, l.pageID, map[string]any{
		l.statusCol: notion.SelectProperty(value),
	})
	if err != nil {
		metrics.RecordStatusWriteFailure()
		log.FromContext(ctx).Warn().Err(err).Str("status", value).Msg("status write failed")
		return
	}
	log.FromContext(ctx).Debug().Str("status", value).Msg("status updated")
}

// Fail records the terminal error: status column to Error plus the first
// line of the error string into the errors column. Best-effort.
func (l *statusLadder) Fail(ctx context.Context, jobErr error) {
	if !l.enabled || jobErr == nil {
		return
	}
	props := map[string]any{
		l.statusCol: notion.SelectProperty(statusError),
	}
	if l.errorCol != "" {
		props[l.errorCol] = notion.TextProperty(firstLine(jobErr.Error()))
	}
	if err := l.catalog.UpdateProperties(ctx, l.pageID, props); err != nil {
		metrics.RecordStatusWriteFailure()
		log.FromContext(ctx).Warn().Err(err).Msg("error status write failed")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
