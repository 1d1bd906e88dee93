// Package transcribe wraps the external speech-recognition CLI. A
// Transcriber is created once per worker and offers two call modes:
// whole-file and chunked-stream over a live PCM pipe.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
)

// Segment is one timed unit of recognized speech. Within a job the segment
// sequence is non-decreasing in Start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a whole-file transcription outcome.
type Result struct {
	Text       string
	Segments   []Segment
	Language   string
	Confidence float64
	Duration   float64
}

// runner abstracts one model invocation over a WAV file so the streaming
// logic is testable without the binary.
type runner interface {
	run(ctx context.Context, wavPath, language string) (chunkResult, error)
}

type chunkResult struct {
	text     string
	segments []Segment
	language string
}

// Transcriber validates the CLI and model once and is then reused for every
// job the worker takes.
type Transcriber struct {
	cfg       *config.Config
	binPath   string
	modelPath string
	scratch   string
	runner    runner
}

// New resolves the recognition CLI and model file. Model selection follows
// the configured default; the model file must already be on disk.
func New(cfg *config.Config) (*Transcriber, error) {
	bin, err := exec.LookPath(cfg.Whisper.CLIPath)
	if err != nil {
		return nil, fmt.Errorf("recognition CLI not found: %w", err)
	}
	model := filepath.Join(cfg.Whisper.ModelDir, "ggml-"+cfg.Whisper.ModelDefault+".bin")
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("model file %s: %w", model, err)
	}

	t := &Transcriber{
		cfg:       cfg,
		binPath:   bin,
		modelPath: model,
		scratch:   cfg.ScratchDir,
	}
	t.runner = t

	log.WithComponent("transcribe").Info().
		Str("model", model).
		Str("device", cfg.Whisper.Device).
		Msg("recognition model ready")
	return t, nil
}

// Transcribe runs the model over a complete audio file.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, language string) (*Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file %s: %w", audioPath, err)
	}

	res, err := t.run(ctx, audioPath, language)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Text:     res.text,
		Segments: res.segments,
		Language: res.language,
	}
	if language != "" {
		out.Confidence = 1.0
	}
	if n := len(res.segments); n > 0 {
		out.Duration = res.segments[n-1].End
	}

	log.FromContext(ctx).Info().
		Str("language", out.Language).
		Int("segments", len(out.Segments)).
		Float64("duration_s", out.Duration).
		Msg("whole-file transcription complete")
	return out, nil
}

// run invokes the CLI over one WAV/audio file with the fixed decoding
// parameters and parses its JSON output.
func (t *Transcriber) run(ctx context.Context, audioPath, language string) (chunkResult, error) {
	w := t.cfg.Whisper
	outStem := audioPath + ".out"

	args := []string{
		"-m", t.modelPath,
		"-f", audioPath,
		"--output-json",
		"--output-file", outStem,
		"--no-prints",
		"--beam-size", strconv.Itoa(w.BeamSize),
		"--temperature", strconv.FormatFloat(w.Temperature, 'f', -1, 64),
		"--entropy-thold", strconv.FormatFloat(w.CompressionRatioCeiling, 'f', -1, 64),
		"--logprob-thold", strconv.FormatFloat(w.LogProbFloor, 'f', -1, 64),
		"--no-speech-thold", strconv.FormatFloat(w.NoSpeechThreshold, 'f', -1, 64),
	}
	if !w.ConditionOnPreviousText {
		args = append(args, "--max-context", "0")
	}
	if w.Device == "cpu" {
		args = append(args, "--no-gpu")
	}
	if language != "" {
		args = append(args, "--language", language)
	} else {
		args = append(args, "--language", "auto")
	}

	cmd := exec.CommandContext(ctx, t.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return chunkResult{}, fmt.Errorf("recognition CLI failed: %w: %s", err, stderr.String())
	}

	jsonPath := outStem + ".json"
	defer os.Remove(jsonPath)

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return chunkResult{}, fmt.Errorf("read recognition output: %w", err)
	}
	return parseOutput(raw)
}

// cliOutput mirrors the CLI's JSON document.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // milliseconds
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseOutput(raw []byte) (chunkResult, error) {
	var doc cliOutput
	if err := json.Unmarshal(raw, &doc); err != nil {
		return chunkResult{}, fmt.Errorf("parse recognition output: %w", err)
	}

	res := chunkResult{language: doc.Result.Language}
	for _, seg := range doc.Transcription {
		res.text += seg.Text
		res.segments = append(res.segments, Segment{
			Start: float64(seg.Offsets.From) / 1000.0,
			End:   float64(seg.Offsets.To) / 1000.0,
			Text:  seg.Text,
		})
	}
	return res, nil
}

// shiftSegments offsets every segment by the running stream position.
func shiftSegments(segs []Segment, offset float64) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = Segment{Start: s.Start + offset, End: s.End + offset, Text: s.Text}
	}
	return out
}
