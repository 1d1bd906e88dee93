package transcribe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	raw := []byte(`{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 2500}, "text": " Hello there."},
			{"offsets": {"from": 2500, "to": 6100}, "text": " General remarks."}
		]
	}`)

	res, err := parseOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, "en", res.language)
	assert.Equal(t, " Hello there. General remarks.", res.text)
	require.Len(t, res.segments, 2)
	assert.InDelta(t, 2.5, res.segments[0].End, 1e-9)
	assert.InDelta(t, 6.1, res.segments[1].End, 1e-9)
}

func TestParseOutputRejectsGarbage(t *testing.T) {
	_, err := parseOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestShiftSegments(t *testing.T) {
	in := []Segment{{Start: 0, End: 1, Text: "a"}, {Start: 1, End: 2, Text: "b"}}
	out := shiftSegments(in, 30)
	assert.InDelta(t, 30.0, out[0].Start, 1e-9)
	assert.InDelta(t, 32.0, out[1].End, 1e-9)
	// Input untouched.
	assert.InDelta(t, 0.0, in[0].Start, 1e-9)
}

func TestWAVHeader(t *testing.T) {
	h := wavHeader(32000, 16000)
	require.Len(t, h, wavHeaderSize)

	assert.Equal(t, "RIFF", string(h[0:4]))
	assert.Equal(t, "WAVE", string(h[8:12]))
	assert.Equal(t, "fmt ", string(h[12:16]))
	assert.Equal(t, "data", string(h[36:40]))

	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(h[20:22]), "PCM format tag")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(h[22:24]), "mono")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(h[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(h[28:32]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(h[34:36]), "bits per sample")
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(h[40:44]), "data length")
}
