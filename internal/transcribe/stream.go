package transcribe

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/metrics"
)

// wavHeaderSize is the fixed RIFF header the transcoder prefixes the PCM
// stream with; it is discarded before chunking.
const wavHeaderSize = 44

// Accumulator collects the incremental output of a streamed transcription.
// Appending never reorders segments.
type Accumulator struct {
	Text            strings.Builder
	Segments        []Segment
	Chunks          int
	StreamCompleted bool
	Language        string
	Confidence      float64
}

// Append adds one chunk result in emission order.
func (a *Accumulator) Append(text string, segs []Segment) {
	a.Text.WriteString(text)
	a.Segments = append(a.Segments, segs...)
	a.Chunks++
}

// Reset clears everything, for the sequential fallback path.
func (a *Accumulator) Reset() {
	a.Text.Reset()
	a.Segments = nil
	a.Chunks = 0
	a.StreamCompleted = false
	a.Language = ""
	a.Confidence = 0
}

// EmitFunc receives each chunk's text and time-shifted segments as they are
// produced.
type EmitFunc func(chunkText string, segments []Segment)

// TranscribeStream consumes a live PCM pipe in fixed windows and feeds each
// window to the model. Timestamps are shifted by the running offset so the
// concatenated segment list stays monotonic. A broken pipe ends the stream
// cleanly with StreamCompleted=false; clean EOF submits the residual buffer
// when it covers at least the configured minimum duration.
func (t *Transcriber) TranscribeStream(ctx context.Context, pcm io.Reader, language string, emit EmitFunc) (*Accumulator, error) {
	acc := &Accumulator{}
	logger := log.FromContext(ctx)

	s := t.cfg.Streaming
	window := int(s.ChunkDuration*float64(s.SampleRate)) * 2 // 16-bit mono
	minBytes := int(s.MinAudioDuration*float64(s.SampleRate)) * 2

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(pcm, header); err != nil {
		logger.Warn().Err(err).Msg("pcm stream ended before WAV header")
		return acc, nil
	}

	var (
		buf        []byte
		offset     float64
		readBuf    = make([]byte, s.BufferSize)
		brokenPipe bool
	)

	for {
		n, err := pcm.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
		}

		for len(buf) >= window {
			if cerr := t.submitChunk(ctx, acc, buf[:window], offset, language, emit); cerr != nil {
				return acc, cerr
			}
			offset += s.ChunkDuration
			buf = buf[window:]
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			brokenPipe = true
			logger.Warn().Err(err).Msg("pcm pipe broke mid-stream, keeping partial result")
			break
		}
		return acc, err
	}

	if !brokenPipe && len(buf) >= minBytes {
		if err := t.submitChunk(ctx, acc, buf, offset, language, emit); err != nil {
			return acc, err
		}
	}

	acc.StreamCompleted = !brokenPipe
	logger.Info().
		Int("chunks", acc.Chunks).
		Int("segments", len(acc.Segments)).
		Bool("stream_completed", acc.StreamCompleted).
		Msg("streamed transcription finished")
	return acc, nil
}

// submitChunk wraps one PCM window in a WAV container, runs the model over
// it and appends the time-shifted result.
func (t *Transcriber) submitChunk(ctx context.Context, acc *Accumulator, pcm []byte, offset float64, language string, emit EmitFunc) error {
	wavPath := filepath.Join(t.scratch, "chunk-"+uuid.NewString()+".wav")
	if err := writeWAV(wavPath, pcm, t.cfg.Streaming.SampleRate); err != nil {
		return err
	}
	defer os.Remove(wavPath)

	res, err := t.runner.run(ctx, wavPath, language)
	if err != nil {
		return err
	}

	segs := shiftSegments(res.segments, offset)
	acc.Append(res.text, segs)
	if acc.Language == "" && res.language != "" {
		acc.Language = res.language
		if language != "" {
			acc.Confidence = 1.0
		}
	}
	if emit != nil {
		emit(res.text, segs)
	}
	metrics.RecordChunk()
	return nil
}
