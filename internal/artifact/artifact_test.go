package artifact

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/transcribe"
)

func TestWriteTranscriptTrimsTrailingWhitespace(t *testing.T) {
	dir := t.TempDir()
	mf, err := WriteTranscript(dir, "2025-03-14 - Weekly Update", "hello world \n\t\n")
	require.NoError(t, err)
	assert.Equal(t, media.KindText, mf.Kind)
	assert.Equal(t, "2025-03-14 - Weekly Update.txt", mf.Filename)

	raw, err := os.ReadFile(mf.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))
}

func TestWriteSRT(t *testing.T) {
	dir := t.TempDir()
	segs := []transcribe.Segment{
		{Start: 0, End: 2.5, Text: " Hello there. "},
		{Start: 2.5, End: 3661.25, Text: "General remarks."},
	}
	mf, err := WriteSRT(dir, "clip", segs)
	require.NoError(t, err)
	assert.Equal(t, media.KindSubtitles, mf.Kind)

	raw, err := os.ReadFile(mf.Path)
	require.NoError(t, err)
	want := "1\n00:00:00,000 --> 00:00:02,500\nHello there.\n\n" +
		"2\n00:00:02,500 --> 01:01:01,250\nGeneral remarks.\n\n"
	assert.Equal(t, want, string(raw))
}

func TestWriteSRTEmptySegments(t *testing.T) {
	dir := t.TempDir()
	mf, err := WriteSRT(dir, "empty", nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(mf.Path)
	require.NoError(t, err)
	assert.Empty(t, string(raw))
}

func TestTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", Timestamp(0))
	assert.Equal(t, "00:00:05,040", Timestamp(5.04))
	assert.Equal(t, "01:01:01,250", Timestamp(3661.25))
	assert.Equal(t, "00:00:00,000", Timestamp(-3))
}

func TestTextFromSRT(t *testing.T) {
	srt := "1\n00:00:00,000 --> 00:00:02,500\nHello there.\n\n" +
		"2\n00:00:02,500 --> 00:00:06,100\nGeneral remarks.\n\n"
	assert.Equal(t, "Hello there. General remarks.", TextFromSRT(srt))
}

func TestTextFromSRTKeepsNumericDialogue(t *testing.T) {
	// A line that is dialogue but happens to follow a timing line must
	// survive; only bare index lines are dropped.
	srt := "1\n00:00:00,000 --> 00:00:01,000\nCall 555 now\n\n"
	assert.Equal(t, "Call 555 now", TextFromSRT(srt))
}
