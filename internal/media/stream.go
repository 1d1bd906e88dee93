package media

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/procgroup"
)

const (
	stopGrace   = 5 * time.Second
	stopTimeout = 15 * time.Second
)

// Pipeline is a running extractor→transcoder chain. The extractor streams
// the best combined format to the transcoder, which writes a matroska copy
// to scratch and emits 16 kHz mono s16le WAV on Audio.
type Pipeline struct {
	VideoPath string
	Audio     io.ReadCloser

	extractor  *exec.Cmd
	transcoder *exec.Cmd
	extErr     bytes.Buffer
	trErr      bytes.Buffer
}

// StreamAndCapture starts the two-process pipeline. When saveVideo is false
// no container file is written and VideoPath is empty. Callers must drain
// Audio to EOF and then call Wait, or call Stop to tear the chain down.
func (a *Acquirer) StreamAndCapture(ctx context.Context, info *VideoInfo, saveVideo bool) (*Pipeline, error) {
	p := &Pipeline{}
	if saveVideo {
		p.VideoPath = filepath.Join(a.scratch, info.BaseName()+".mkv")
	}

	extArgs := []string{
		"--quiet",
		"--no-warnings",
		"-f", "bv*+ba/b",
		"-o", "-",
		"--no-part",
	}
	extArgs = append(extArgs, a.spoofArgs()...)
	extArgs = append(extArgs, info.URL)

	trArgs := []string{"-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
	if saveVideo {
		trArgs = append(trArgs,
			"-map", "0:v?",
			"-map", "0:a?",
			"-c", "copy",
			"-f", "matroska",
			p.VideoPath,
		)
	}
	trArgs = append(trArgs,
		"-map", "0:a:0",
		"-ar", strconv.Itoa(a.cfg.Streaming.SampleRate),
		"-ac", "1",
		"-f", "wav",
		"-acodec", "pcm_s16le",
		"pipe:1",
	)

	p.extractor = exec.CommandContext(ctx, a.cfg.YTDLP.Path, extArgs...)
	p.extractor.Stderr = &p.extErr
	procgroup.Set(p.extractor)

	p.transcoder = exec.CommandContext(ctx, a.cfg.FFmpegPath, trArgs...)
	p.transcoder.Stderr = &p.trErr
	procgroup.Set(p.transcoder)

	extOut, err := p.extractor.StdoutPipe()
	if err != nil {
		return nil, &PipelineError{Stage: "extractor", Err: err}
	}
	p.transcoder.Stdin = extOut

	audio, err := p.transcoder.StdoutPipe()
	if err != nil {
		return nil, &PipelineError{Stage: "transcoder", Err: err}
	}
	p.Audio = audio

	if err := p.extractor.Start(); err != nil {
		return nil, &PipelineError{Stage: "extractor", Err: err}
	}
	if err := p.transcoder.Start(); err != nil {
		p.stopExtractor()
		return nil, &PipelineError{Stage: "transcoder", Err: err}
	}

	log.FromContext(ctx).Info().
		Str("video_path", p.VideoPath).
		Int("sample_rate", a.cfg.Streaming.SampleRate).
		Msg("stream pipeline started")

	return p, nil
}

// Wait reaps both children after Audio has been drained. A non-zero
// transcoder exit is a pipeline error; an extractor exit caused by the
// downstream pipe closing is reported via Warnings instead.
func (p *Pipeline) Wait() error {
	extErr := p.extractor.Wait()
	trErr := p.transcoder.Wait()

	if trErr != nil {
		return &PipelineError{Stage: "transcoder", Stderr: p.trErr.String(), Err: trErr}
	}
	if extErr != nil && p.extErr.Len() > 0 {
		// The extractor commonly dies on SIGPIPE once the transcoder is
		// done; only a stderr-bearing failure is worth surfacing.
		return &PipelineError{Stage: "extractor", Stderr: p.extErr.String(), Err: extErr}
	}
	return nil
}

// Stop tears down both process groups, SIGTERM first then SIGKILL, and
// reaps them. Used when the consumer aborts mid-stream.
func (p *Pipeline) Stop() {
	p.stopExtractor()
	if p.transcoder.Process != nil {
		_ = procgroup.KillGroup(p.transcoder.Process.Pid, stopGrace, stopTimeout)
	}
	_ = p.extractor.Wait()
	_ = p.transcoder.Wait()
}

func (p *Pipeline) stopExtractor() {
	if p.extractor.Process != nil {
		_ = procgroup.KillGroup(p.extractor.Process.Pid, stopGrace, stopTimeout)
	}
}

// Active reports whether the transcoder is still running.
func (p *Pipeline) Active() bool {
	return p.transcoder.Process != nil && p.transcoder.ProcessState == nil
}

// Warnings returns whatever the transcoder wrote to stderr, for logging.
func (p *Pipeline) Warnings() string {
	return strings.TrimSpace(p.trErr.String())
}
