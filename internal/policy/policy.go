// Package policy maps event source channels to catalog destinations. The
// table is assembled once at startup from static definitions plus folder ids
// taken from the environment, and is read-only afterwards.
package policy

import (
	"fmt"

	"github.com/framefeed/vidscribe/internal/config"
)

// Action decides whether a job creates a new catalog page or updates the row
// referenced by the submission.
type Action string

const (
	ActionCreateNew      Action = "create-new"
	ActionUpdateExisting Action = "update-existing"
)

// FieldType is the implied wire type of a logical key. The implied type per
// logical key is fixed; only the column name varies per channel.
type FieldType string

const (
	TypeTitle  FieldType = "title"
	TypeText   FieldType = "text"
	TypeURL    FieldType = "url"
	TypeFile   FieldType = "file"
	TypeSelect FieldType = "select"
	TypeDate   FieldType = "date"
	TypeNumber FieldType = "number"
)

// Field binds a logical key to a catalog column.
type Field struct {
	Key    string
	Column string
	Type   FieldType
}

// TitleFormat selects how the page title is rendered.
type TitleFormat string

const (
	TitleDefault TitleFormat = "default" // "{date} - {title}"
	TitleYouTube TitleFormat = "youtube" // "YouTube Video: {title}"
)

// Policy is the per-channel processing decision: where artifacts go and how
// the catalog row is shaped.
type Policy struct {
	Channel         string
	Action          Action
	DestinationID   string // required iff Action == ActionCreateNew
	FolderID        string // base object-store folder for per-video subfolders
	Fields          []Field
	StatusValue     string
	TitleFormat     TitleFormat
	SkipCompression bool
}

// Field returns the field bound to the given logical key.
func (p Policy) Field(key string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Table is the immutable channel → policy mapping.
type Table struct {
	policies map[string]Policy
}

// Lookup resolves a channel name to its policy. Pure lookup, no side effects.
func (t *Table) Lookup(channel string) (Policy, bool) {
	p, ok := t.policies[channel]
	return p, ok
}

// Channels returns the known channel names.
func (t *Table) Channels() []string {
	out := make([]string, 0, len(t.policies))
	for name := range t.policies {
		out = append(out, name)
	}
	return out
}

// fieldTypeFor fixes the implied type of every known logical key.
var fieldTypeFor = map[string]FieldType{
	"name":                   TypeTitle,
	"date":                   TypeDate,
	"video_date_time":        TypeDate,
	"video_link":             TypeURL,
	"video_url":              TypeURL,
	"live_video_url":         TypeURL,
	"drive_folder":           TypeURL,
	"drive_folder_link":      TypeURL,
	"video_file":             TypeURL,
	"audio_file":             TypeURL,
	"transcript_file":        TypeFile,
	"transcript_srt_file":    TypeFile,
	"transcript_text":        TypeText,
	"video_id":               TypeText,
	"process_errors":         TypeText,
	"status":                 TypeSelect,
	"discord_channel":        TypeSelect,
	"youtube_channel":        TypeSelect,
	"youtube_listing_status": TypeSelect,
	"length_min":             TypeNumber,
}

// TypeForKey returns the fixed implied type for a logical key.
func TypeForKey(key string) (FieldType, bool) {
	t, ok := fieldTypeFor[key]
	return t, ok
}

func fields(pairs ...[2]string) ([]Field, error) {
	out := make([]Field, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		key, column := p[0], p[1]
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate logical key %q in field map", key)
		}
		seen[key] = struct{}{}
		ft, ok := fieldTypeFor[key]
		if !ok {
			return nil, fmt.Errorf("unknown logical key %q in field map", key)
		}
		out = append(out, Field{Key: key, Column: column, Type: ft})
	}
	return out, nil
}

// merge overlays an override onto a base policy. Zero-valued override fields
// keep the base value; the field map is replaced wholesale when set.
func merge(base, override Policy) Policy {
	out := base
	if override.Channel != "" {
		out.Channel = override.Channel
	}
	if override.Action != "" {
		out.Action = override.Action
	}
	if override.DestinationID != "" {
		out.DestinationID = override.DestinationID
	}
	if override.FolderID != "" {
		out.FolderID = override.FolderID
	}
	if override.Fields != nil {
		out.Fields = override.Fields
	}
	if override.StatusValue != "" {
		out.StatusValue = override.StatusValue
	}
	if override.TitleFormat != "" {
		out.TitleFormat = override.TitleFormat
	}
	if override.SkipCompression {
		out.SkipCompression = true
	}
	return out
}

// Load assembles the policy table from the static channel definitions and
// the configured folder/database ids, and validates every entry.
func Load(cfg *config.Config) (*Table, error) {
	videosBaseFields, err := fields(
		[2]string{"name", "Name"},
		[2]string{"date", "Date"},
		[2]string{"video_link", "Video Link"},
		[2]string{"drive_folder", "Google Drive Folder"},
		[2]string{"video_file", "Drive Link"},
		[2]string{"audio_file", "Audio File"},
		[2]string{"transcript_file", "Transcript File"},
		[2]string{"transcript_srt_file", "Transcript SRT File"},
		[2]string{"transcript_text", "Transcript Text"},
		[2]string{"discord_channel", "Discord Channel"},
		[2]string{"youtube_channel", "YouTube Channel"},
		[2]string{"youtube_listing_status", "YouTube Listing Status"},
		[2]string{"video_id", "Video ID"},
		[2]string{"length_min", "Length (min)"},
		[2]string{"status", "Status"},
	)
	if err != nil {
		return nil, err
	}

	// The audit-process map deliberately carries no video_url/live_video_url
	// entries: chat-platform videos have no video-host URL.
	auditFields, err := fields(
		[2]string{"drive_folder", "Drive Folder"},
		[2]string{"video_file", "Video FIle Link"},
		[2]string{"audio_file", "Audio File Link"},
		[2]string{"transcript_file", "Transcript File"},
		[2]string{"transcript_srt_file", "Transcript SRT File"},
		[2]string{"transcript_text", "Transcript Text"},
		[2]string{"length_min", "Length (min)"},
		[2]string{"status", "Transcript Process Status"},
		[2]string{"process_errors", "ProcessErrors"},
	)
	if err != nil {
		return nil, err
	}

	videosBase := Policy{
		Action:      ActionCreateNew,
		Fields:      videosBaseFields,
		StatusValue: "complete",
		TitleFormat: TitleDefault,
	}

	defs := []Policy{
		merge(videosBase, Policy{
			Channel:       "market-outlook",
			DestinationID: cfg.Notion.VideosDBID,
			FolderID:      cfg.Drive.FolderMarketOutlook,
		}),
		merge(videosBase, Policy{
			Channel:       "market-analysis-streams",
			DestinationID: cfg.Notion.DriveUploadsDBID,
			FolderID:      cfg.Drive.FolderMarketAnalysis,
			TitleFormat:   TitleYouTube,
		}),
		{
			Channel:         "audit-process",
			Action:          ActionUpdateExisting,
			FolderID:        cfg.Drive.FolderAuditProcess,
			Fields:          auditFields,
			StatusValue:     "Complete",
			TitleFormat:     TitleDefault,
			SkipCompression: true,
		},
	}

	table := &Table{policies: make(map[string]Policy, len(defs))}
	for _, p := range defs {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.Channel, err)
		}
		if _, dup := table.policies[p.Channel]; dup {
			return nil, fmt.Errorf("duplicate channel policy %q", p.Channel)
		}
		table.policies[p.Channel] = p
	}
	return table, nil
}

func validate(p Policy) error {
	if p.Channel == "" {
		return fmt.Errorf("channel name is empty")
	}
	switch p.Action {
	case ActionCreateNew:
		if p.DestinationID == "" {
			return fmt.Errorf("create-new policy requires a destination database id")
		}
	case ActionUpdateExisting:
	default:
		return fmt.Errorf("unknown action %q", p.Action)
	}
	if p.FolderID == "" {
		return fmt.Errorf("no drive folder configured")
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("empty field map")
	}
	if p.StatusValue == "" {
		return fmt.Errorf("no status value configured")
	}
	return nil
}
