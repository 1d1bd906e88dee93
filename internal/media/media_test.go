package media

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefeed/vidscribe/internal/config"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Market Outlook 2025", "Market Outlook 2025"},
		{"Q&A: earnings / outlook?", "Q_A_ earnings _ outlook_"},
		{"snake_case-dash ok", "snake_case-dash ok"},
		{"émission télé", "émission télé"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Sanitize(c.in), "input %q", c.in)
	}
}

func TestBaseName(t *testing.T) {
	info := VideoInfo{UploadDate: "2025-03-14", SafeTitle: "Weekly Update"}
	assert.Equal(t, "2025-03-14 - Weekly Update", info.BaseName())
}

func TestNormalizeUploadDate(t *testing.T) {
	assert.Equal(t, "2025-03-14", normalizeUploadDate("20250314"))
	assert.Equal(t, "2025-03-14", normalizeUploadDate("2025-03-14"))
	// Garbage falls back to a real date, never an empty stem.
	assert.Len(t, normalizeUploadDate("not-a-date"), 10)
}

func TestMediaFileExists(t *testing.T) {
	dir := t.TempDir()
	absent := NewMediaFile(filepath.Join(dir, "missing.mp4"), KindVideo)
	assert.False(t, absent.Exists())
	assert.Equal(t, "missing.mp4", absent.Filename)
	assert.Equal(t, KindVideo, absent.Kind)
}

func TestSpoofArgsCarryClientList(t *testing.T) {
	a := newTestAcquirer(t)
	args := a.spoofArgs()
	assert.Contains(t, args, "--force-ipv4")

	joined := ""
	for _, s := range args {
		joined += s + " "
	}
	assert.Contains(t, joined, "player_client=android,ios,tv")
	assert.Contains(t, joined, "player_skip=web_safari,web")
}

func TestTrimExt(t *testing.T) {
	assert.Equal(t, "/tmp/a/video", trimExt("/tmp/a/video.mkv"))
	assert.Equal(t, "/tmp/a.b/clip", trimExt("/tmp/a.b/clip.mp4"))
	assert.Equal(t, "/tmp/a.b/noext", trimExt("/tmp/a.b/noext"))
}

func TestPipelineErrorUnwraps(t *testing.T) {
	inner := assert.AnError
	err := &PipelineError{Stage: "transcoder", Stderr: "boom", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.True(t, IsPipelineError(err))
	assert.Contains(t, err.Error(), "transcoder")
	assert.Contains(t, err.Error(), "boom")
}

func newTestAcquirer(t *testing.T) *Acquirer {
	t.Helper()
	t.Setenv("NOTION_TOKEN", "secret")
	t.Setenv("DISCORD_MESSAGE_DB_ID", "db")
	t.Setenv("SCRATCH_DIR", t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := NewAcquirer(cfg)
	require.NoError(t, err)
	return a
}
