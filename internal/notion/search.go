package notion

import (
	"context"

	"github.com/framefeed/vidscribe/internal/log"
)

// Columns probed by the duplicate search. These two destination databases
// share the same URL and transcript columns.
const (
	urlColumn     = "Video Link"
	txtFileColumn = "Transcript File"
	srtFileColumn = "Transcript SRT File"
)

// Match is a duplicate-probe hit.
type Match struct {
	Page          Page
	DatabaseID    string
	HasTranscript bool
}

// FindByURL searches the two well-known destination databases for a page
// whose URL column equals videoURL. HasTranscript is derived from either
// transcript files column being non-empty. Returns nil when nothing matches.
func (c *Client) FindByURL(ctx context.Context, videoURL string) (*Match, error) {
	filter := map[string]any{
		"property": urlColumn,
		"url":      map[string]any{"equals": videoURL},
	}

	for _, dbID := range []string{c.videosDBID, c.driveUploadsDBID} {
		if dbID == "" {
			continue
		}
		pages, err := c.QueryDatabase(ctx, dbID, filter)
		if err != nil {
			return nil, err
		}
		if len(pages) == 0 {
			continue
		}

		page := pages[0]
		match := &Match{
			Page:       page,
			DatabaseID: dbID,
			HasTranscript: HasFiles(page.Properties[txtFileColumn]) ||
				HasFiles(page.Properties[srtFileColumn]),
		}
		log.FromContext(ctx).Info().
			Str("page_id", page.ID).
			Str("database_id", dbID).
			Bool("has_transcript", match.HasTranscript).
			Msg("duplicate probe matched existing page")
		return match, nil
	}
	return nil, nil
}
