package coordinator

import (
	"context"
	"fmt"
	"math"

	"github.com/framefeed/vidscribe/internal/drive"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/notion"
	"github.com/framefeed/vidscribe/internal/policy"
)

// artifactLinks holds the viewable URLs produced by the upload phase.
// Absent artifacts stay empty and are skipped by the field builders.
type artifactLinks struct {
	FolderID string
	Video    string
	Audio    string
	Text     string
	SRT      string
}

// pageData assembles the logical-key → value bundle for one job. Keys not
// present in a policy's field map are simply never dispatched.
func pageData(info *media.VideoInfo, pol policy.Policy, links artifactLinks, text string, durationSec float64) map[string]any {
	listing := "Unlisted"
	if info.Availability == "public" {
		listing = "Public"
	}

	folderLink := ""
	if links.FolderID != "" {
		folderLink = drive.FolderURL(links.FolderID)
	}

	return map[string]any{
		"name":                   renderTitle(pol.TitleFormat, info),
		"date":                   info.UploadDate,
		"video_date_time":        info.UploadDate,
		"video_link":             info.URL,
		"video_url":              info.URL,
		"live_video_url":         info.URL,
		"video_id":               info.ID,
		"youtube_channel":        info.Channel,
		"youtube_listing_status": listing,
		"drive_folder":           folderLink,
		"drive_folder_link":      folderLink,
		"video_file":             links.Video,
		"audio_file":             links.Audio,
		"transcript_file":        links.Text,
		"transcript_srt_file":    links.SRT,
		"transcript_text":        text,
		"discord_channel":        pol.Channel,
		"status":                 pol.StatusValue,
		"length_min":             lengthMin(durationSec),
	}
}

func renderTitle(format policy.TitleFormat, info *media.VideoInfo) string {
	if format == policy.TitleYouTube {
		return "YouTube Video: " + info.Title
	}
	return fmt.Sprintf("%s - %s", info.UploadDate, info.Title)
}

// lengthMin is the duration in minutes, one decimal place.
func lengthMin(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Round(seconds/60*10) / 10
}

// properties walks the policy's ordered field map and dispatches each bound
// value through the typed builders. Empty and nil values are skipped.
func properties(pol policy.Policy, data map[string]any) map[string]any {
	props := make(map[string]any, len(pol.Fields))
	for _, f := range pol.Fields {
		value, bound := data[f.Key]
		if !bound {
			continue
		}
		if p, ok := notion.PropertyForField(f, value); ok {
			props[f.Column] = p
		}
	}
	return props
}

// publish writes the catalog entry. targetPageID, when non-empty, forces an
// update of that page (dedup re-use or an update-existing policy); otherwise
// a new page is created in the policy's destination database. The transcript
// toggle lands on whichever page was written, and for created pages the new
// page URL is linked back into the origin row.
func (c *Coordinator) publish(ctx context.Context, pol policy.Policy, originPageID, targetPageID string, data map[string]any, transcriptText string) (*Result, error) {
	props := properties(pol, data)
	logger := log.FromContext(ctx)

	if targetPageID != "" {
		if err := c.catalog.UpdateProperties(ctx, targetPageID, props); err != nil {
			return nil, err
		}
		if err := c.catalog.AppendTranscriptToggle(ctx, targetPageID, transcriptText); err != nil {
			logger.Warn().Err(err).Msg("transcript toggle append failed")
		}
		if originPageID != "" && originPageID != targetPageID {
			if err := c.catalog.UpdateTranscriptField(ctx, originPageID, notion.PageURLFromID(targetPageID)); err != nil {
				logger.Warn().Err(err).Msg("origin row backlink failed")
			}
		}
		return &Result{Status: "success", PageID: targetPageID, PageURL: notion.PageURLFromID(targetPageID)}, nil
	}

	page, err := c.catalog.CreatePage(ctx, pol.DestinationID, props)
	if err != nil {
		return nil, err
	}
	if err := c.catalog.AppendTranscriptToggle(ctx, page.ID, transcriptText); err != nil {
		logger.Warn().Err(err).Msg("transcript toggle append failed")
	}
	if originPageID != "" {
		if err := c.catalog.UpdateTranscriptField(ctx, originPageID, page.URL); err != nil {
			logger.Warn().Err(err).Msg("origin row backlink failed")
		}
	}
	return &Result{Status: "success", PageID: page.ID, PageURL: page.URL}, nil
}
