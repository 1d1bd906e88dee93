package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefeed/vidscribe/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Notion.VideosDBID = "287daf66daf7807290d0fb514fdf4d86"
	cfg.Notion.DriveUploadsDBID = "287daf66daf780fb89f7dd15bac7aa2a"
	cfg.Drive.FolderMarketOutlook = "folder-outlook"
	cfg.Drive.FolderMarketAnalysis = "folder-analysis"
	cfg.Drive.FolderAuditProcess = "folder-audit"
	return cfg
}

func TestLoadAndLookup(t *testing.T) {
	table, err := Load(testConfig())
	require.NoError(t, err)

	p, ok := table.Lookup("market-outlook")
	require.True(t, ok)
	assert.Equal(t, ActionCreateNew, p.Action)
	assert.Equal(t, "287daf66daf7807290d0fb514fdf4d86", p.DestinationID)
	assert.Equal(t, "folder-outlook", p.FolderID)
	assert.Equal(t, "complete", p.StatusValue)
	assert.Equal(t, TitleDefault, p.TitleFormat)
	assert.False(t, p.SkipCompression)

	_, ok = table.Lookup("unknown-channel")
	assert.False(t, ok)
}

func TestUpdateExistingPolicy(t *testing.T) {
	table, err := Load(testConfig())
	require.NoError(t, err)

	p, ok := table.Lookup("audit-process")
	require.True(t, ok)
	assert.Equal(t, ActionUpdateExisting, p.Action)
	assert.Empty(t, p.DestinationID)
	assert.True(t, p.SkipCompression)
	assert.Equal(t, "Complete", p.StatusValue)

	f, ok := p.Field("video_file")
	require.True(t, ok)
	assert.Equal(t, "Video FIle Link", f.Column)
	assert.Equal(t, TypeURL, f.Type)

	f, ok = p.Field("status")
	require.True(t, ok)
	assert.Equal(t, "Transcript Process Status", f.Column)
	assert.Equal(t, TypeSelect, f.Type)

	// Chat-platform jobs never carry a video-host URL.
	_, ok = p.Field("video_url")
	assert.False(t, ok)
	_, ok = p.Field("live_video_url")
	assert.False(t, ok)
}

func TestMergeOverrides(t *testing.T) {
	base := Policy{
		Action:      ActionCreateNew,
		StatusValue: "complete",
		TitleFormat: TitleDefault,
		Fields:      []Field{{Key: "name", Column: "Name", Type: TypeTitle}},
	}
	out := merge(base, Policy{Channel: "x", DestinationID: "db", TitleFormat: TitleYouTube})

	assert.Equal(t, "x", out.Channel)
	assert.Equal(t, "db", out.DestinationID)
	assert.Equal(t, TitleYouTube, out.TitleFormat)
	assert.Equal(t, "complete", out.StatusValue)
	assert.Len(t, out.Fields, 1)
}

func TestCreateNewRequiresDestination(t *testing.T) {
	cfg := testConfig()
	cfg.Notion.VideosDBID = ""

	_, err := Load(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination database id")
}

func TestImpliedTypesAreFixed(t *testing.T) {
	for key, want := range map[string]FieldType{
		"name":                   TypeTitle,
		"transcript_file":        TypeFile,
		"status":                 TypeSelect,
		"length_min":             TypeNumber,
		"date":                   TypeDate,
		"video_link":             TypeURL,
		"transcript_text":        TypeText,
		"youtube_listing_status": TypeSelect,
	} {
		got, ok := TypeForKey(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := TypeForKey("no_such_key")
	assert.False(t, ok)
}
