package coordinator

import (
	"context"
	"io"
	"strings"

	"github.com/framefeed/vidscribe/internal/artifact"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/policy"
	"github.com/framefeed/vidscribe/internal/queue"
	"github.com/framefeed/vidscribe/internal/transcribe"
)

// transcription is the mode-independent outcome of the acquire+transcribe
// stage: a saved container file plus the accumulated recognition result.
type transcription struct {
	VideoPath string
	AudioPath string // set only by the fallback path
	Text      string
	Segments  []transcribe.Segment
	Duration  float64
	Mode      string // "streaming" or "fallback"
}

// processVideoHost drives a video-host URL job through the full phase
// sequence.
func (c *Coordinator) processVideoHost(ctx context.Context, sub *queue.Submission, pol policy.Policy, ladder *statusLadder) (res *Result, err error) {
	logger := log.FromContext(ctx)
	scratch := &scratchSet{}
	defer scratch.cleanup(ctx)

	ladder.Set(ctx, statusProcessing)

	// Duplicate probe: a URL that already produced a transcript is skipped
	// outright; a match without one is updated instead of duplicated.
	var existingPageID string
	err = phase(ctx, "dedup_probe", func() error {
		match, probeErr := c.catalog.FindByURL(ctx, sub.VideoURL)
		if probeErr != nil {
			return probeErr
		}
		if match == nil {
			return nil
		}
		if match.HasTranscript {
			res = &Result{Status: "skipped", Reason: "already_processed", VideoURL: sub.VideoURL,
				PageID: match.Page.ID, PageURL: match.Page.URL}
			return nil
		}
		existingPageID = match.Page.ID
		return nil
	})
	if err != nil || res != nil {
		return res, err
	}

	var info *media.VideoInfo
	if err := phase(ctx, "probe", func() error {
		var pErr error
		info, pErr = c.media.ProbeInfo(ctx, sub.VideoURL)
		return pErr
	}); err != nil {
		return nil, err
	}

	parent := pol.FolderID
	if sub.ParentFolderID != "" {
		parent = sub.ParentFolderID
	}
	var folderID string
	if err := phase(ctx, "create_folder", func() error {
		var fErr error
		folderID, fErr = c.store.CreateFolder(ctx, info.BaseName(), parent)
		return fErr
	}); err != nil {
		return nil, err
	}

	ladder.Set(ctx, statusDownloading)

	var tr *transcription
	err = phase(ctx, "acquire_transcribe", func() error {
		outcome, sErr := c.stream(ctx, info)
		if sErr == nil && outcome.Acc.StreamCompleted {
			scratch.add(outcome.VideoPath)
			if outcome.Warnings != "" {
				logger.Warn().Str("warnings", outcome.Warnings).Msg("transcoder warnings")
			}
			tr = &transcription{
				VideoPath: outcome.VideoPath,
				Text:      outcome.Acc.Text.String(),
				Segments:  outcome.Acc.Segments,
				Duration:  segmentsDuration(outcome.Acc.Segments),
				Mode:      "streaming",
			}
			return nil
		}
		if outcome != nil {
			scratch.add(outcome.VideoPath)
		}
		if sErr != nil {
			logger.Warn().Err(sErr).Msg("streamed pipeline failed, entering fallback")
		} else {
			logger.Warn().Msg("pcm stream ended early, entering fallback")
		}

		var fErr error
		tr, fErr = c.fallback(ctx, info, scratch)
		return fErr
	})
	if err != nil {
		return nil, err
	}

	ladder.Set(ctx, statusTranscribing)

	var txt, srt media.MediaFile
	if err := phase(ctx, "assemble_artifacts", func() error {
		var aErr error
		txt, srt, aErr = c.assemble(info.BaseName(), tr, scratch)
		return aErr
	}); err != nil {
		return nil, err
	}

	if err := phase(ctx, "compress", func() error {
		tr.VideoPath = c.finalizeVideo(ctx, tr.VideoPath, pol, scratch)
		return nil
	}); err != nil {
		return nil, err
	}

	ladder.Set(ctx, statusUploading)

	var links artifactLinks
	if err := phase(ctx, "upload", func() error {
		var uErr error
		links, uErr = c.uploadArtifacts(ctx, folderID, tr, txt, srt, scratch)
		return uErr
	}); err != nil {
		return nil, err
	}

	err = phase(ctx, "publish", func() error {
		data := pageData(info, pol, links, tr.Text, tr.Duration)
		target := existingPageID
		if pol.Action == policy.ActionUpdateExisting {
			target = sub.DiscordEntryID
		}
		var pErr error
		res, pErr = c.publish(ctx, pol, sub.DiscordEntryID, target, data, tr.Text)
		return pErr
	})
	if err != nil {
		return nil, err
	}

	res.ProcessingMode = tr.Mode
	res.VideoURL = sub.VideoURL
	res.LengthMin = lengthMin(tr.Duration)
	return res, nil
}

// fallback is the sequential path: independent whole-file video and audio
// downloads followed by a whole-file transcription. It guarantees a result
// when the streamed chain cannot sustain the pipe.
func (c *Coordinator) fallback(ctx context.Context, info *media.VideoInfo, scratch *scratchSet) (*transcription, error) {
	video, err := c.media.DownloadVideo(ctx, info)
	if err != nil {
		return nil, err
	}
	scratch.add(video.Path)

	audio, err := c.media.DownloadAudio(ctx, info)
	if err != nil {
		return nil, err
	}
	scratch.add(audio.Path)

	result, err := c.stt.Transcribe(ctx, audio.Path, "")
	if err != nil {
		return nil, err
	}

	return &transcription{
		VideoPath: video.Path,
		AudioPath: audio.Path,
		Text:      result.Text,
		Segments:  result.Segments,
		Duration:  result.Duration,
		Mode:      "fallback",
	}, nil
}

// assemble writes the transcript text and, when segments exist, the
// subtitle file.
func (c *Coordinator) assemble(baseName string, tr *transcription, scratch *scratchSet) (txt, srt media.MediaFile, err error) {
	txt, err = artifact.WriteTranscript(c.media.ScratchDir(), baseName, tr.Text)
	if err != nil {
		return txt, srt, err
	}
	scratch.add(txt.Path)

	if len(tr.Segments) > 0 {
		srt, err = artifact.WriteSRT(c.media.ScratchDir(), baseName, tr.Segments)
		if err != nil {
			return txt, srt, err
		}
		scratch.add(srt.Path)
	}
	return txt, srt, nil
}

// finalizeVideo remuxes a matroska capture to mp4 and optionally re-encodes
// it. Compression failures keep the original file.
func (c *Coordinator) finalizeVideo(ctx context.Context, videoPath string, pol policy.Policy, scratch *scratchSet) string {
	logger := log.FromContext(ctx)

	if strings.HasSuffix(videoPath, ".mkv") {
		remuxed, err := c.media.ConvertMKVToMP4(ctx, videoPath)
		if err != nil {
			logger.Warn().Err(err).Msg("mkv remux failed, keeping matroska file")
		} else {
			scratch.add(remuxed)
			videoPath = remuxed
		}
	}

	if !c.cfg.Compression.Enabled || pol.SkipCompression {
		return videoPath
	}
	compressed, err := c.media.CompressVideo(ctx, videoPath)
	if err != nil {
		logger.Warn().Err(err).Msg("compression failed, keeping original video")
		return videoPath
	}
	scratch.add(compressed)
	return compressed
}

// uploadArtifacts pushes every produced file through upload_if_absent and
// collects viewable links. The audio file is extracted from the final video
// when the pipeline did not already produce one.
func (c *Coordinator) uploadArtifacts(ctx context.Context, folderID string, tr *transcription, txt, srt media.MediaFile, scratch *scratchSet) (artifactLinks, error) {
	links := artifactLinks{FolderID: folderID}

	if tr.VideoPath != "" {
		video := media.NewMediaFile(tr.VideoPath, media.KindVideo)
		if video.Exists() {
			_, f, err := c.store.UploadIfAbsent(ctx, video, folderID)
			if err != nil {
				return links, err
			}
			links.Video = f.ViewLink
		}
	}

	audioPath := tr.AudioPath
	if audioPath == "" && tr.VideoPath != "" {
		extracted, err := c.media.ExtractAudio(ctx, tr.VideoPath)
		if err != nil {
			log.FromContext(ctx).Warn().Err(err).Msg("audio extraction failed, skipping audio artifact")
		} else {
			scratch.add(extracted.Path)
			audioPath = extracted.Path
		}
	}
	if audioPath != "" {
		audio := media.NewMediaFile(audioPath, media.KindAudio)
		if audio.Exists() {
			_, f, err := c.store.UploadIfAbsent(ctx, audio, folderID)
			if err != nil {
				return links, err
			}
			links.Audio = f.ViewLink
		}
	}

	if txt.Path != "" && txt.Exists() {
		_, f, err := c.store.UploadIfAbsent(ctx, txt, folderID)
		if err != nil {
			return links, err
		}
		links.Text = f.ViewLink
	}
	if srt.Path != "" && srt.Exists() {
		_, f, err := c.store.UploadIfAbsent(ctx, srt, folderID)
		if err != nil {
			return links, err
		}
		links.SRT = f.ViewLink
	}
	return links, nil
}

// pipelineHandle is the part of the running pipeline the consumer needs.
type pipelineHandle interface {
	Wait() error
	Stop()
	Warnings() string
}

// streamAndTranscribe is the default streamFunc: starts the two-process
// pipeline and drives the chunked transcriber off its PCM pipe.
func (c *Coordinator) streamAndTranscribe(ctx context.Context, acq *media.Acquirer, info *media.VideoInfo) (*streamOutcome, error) {
	p, err := acq.StreamAndCapture(ctx, info, true)
	if err != nil {
		return nil, err
	}
	return c.consumeStream(ctx, p.VideoPath, p.Audio, p)
}

// consumeStream drives the transcriber off the pipeline's PCM pipe. The
// outcome is returned even alongside an error: the transcoder has already
// written the capture file, and the caller must track it for cleanup.
func (c *Coordinator) consumeStream(ctx context.Context, videoPath string, audio io.Reader, p pipelineHandle) (*streamOutcome, error) {
	acc, sErr := c.stt.TranscribeStream(ctx, audio, "", nil)
	if sErr != nil {
		p.Stop()
		return &streamOutcome{VideoPath: videoPath, Acc: acc, Warnings: p.Warnings()}, sErr
	}

	wErr := p.Wait()
	outcome := &streamOutcome{VideoPath: videoPath, Acc: acc, Warnings: p.Warnings()}
	return outcome, wErr
}

func segmentsDuration(segs []transcribe.Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	return segs[len(segs)-1].End
}
