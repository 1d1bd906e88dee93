package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/framefeed/vidscribe/internal/discord"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/media"
	"github.com/framefeed/vidscribe/internal/policy"
	"github.com/framefeed/vidscribe/internal/queue"
)

// processChatAttachment drives a chat-message URL job: fetch the message,
// download its first video attachment, transcribe whole-file and update the
// origin catalog row.
func (c *Coordinator) processChatAttachment(ctx context.Context, sub *queue.Submission, pol policy.Policy, ladder *statusLadder) (res *Result, err error) {
	logger := log.FromContext(ctx)
	scratch := &scratchSet{}
	defer scratch.cleanup(ctx)

	ladder.Set(ctx, statusProcessing)

	var msg *discord.Message
	var meta *discord.MessageMetadata
	var att *discord.Attachment
	messageURL := sub.VideoURL
	err = phase(ctx, "fetch_message", func() error {
		// Submissions keyed by origin row alone carry the message URL in the
		// catalog, not in the payload.
		if !discord.IsMessageURL(messageURL) {
			if sub.DiscordEntryID == "" {
				return queue.Terminal(fmt.Errorf("submission has neither a message url nor an origin row"))
			}
			entry, eErr := c.catalog.GetDiscordMessageEntry(ctx, sub.DiscordEntryID)
			if eErr != nil {
				return eErr
			}
			switch {
			case discord.IsMessageURL(entry.MessageURL):
				messageURL = entry.MessageURL
			case discord.IsMessageURL(entry.AttachedURL):
				messageURL = entry.AttachedURL
			default:
				return queue.Terminal(fmt.Errorf("origin row %s carries no message url", sub.DiscordEntryID))
			}
		}

		var fErr error
		msg, meta, fErr = c.chat.FetchMessageData(ctx, messageURL)
		if fErr != nil {
			return fErr
		}
		att = discord.FindVideoAttachment(msg)
		if att == nil {
			return queue.Terminal(fmt.Errorf("message %s carries no video attachment", meta.MessageID))
		}
		logger.Info().
			Str("author", meta.Author).
			Str("server", meta.Server).
			Str("channel", meta.Channel).
			Str("attachment", att.Filename).
			Msg("message resolved")
		return nil
	})
	if err != nil {
		return nil, err
	}

	info := chatVideoInfo(messageURL, meta, att)

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

	var video media.MediaFile
	if err := phase(ctx, "download_attachment", func() error {
		var dErr error
		video, dErr = c.chat.DownloadAttachment(ctx, att, c.media.ScratchDir())
		if dErr == nil {
			scratch.add(video.Path)
		}
		return dErr
	}); err != nil {
		return nil, err
	}

	ladder.Set(ctx, statusTranscribing)

	tr := &transcription{VideoPath: video.Path, Mode: "whole-file"}
	err = phase(ctx, "transcribe", func() error {
		audio, aErr := c.media.ExtractAudio(ctx, video.Path)
		if aErr != nil {
			return aErr
		}
		scratch.add(audio.Path)
		tr.AudioPath = audio.Path

		result, tErr := c.stt.Transcribe(ctx, audio.Path, "")
		if tErr != nil {
			return tErr
		}
		tr.Text = result.Text
		tr.Segments = result.Segments
		tr.Duration = result.Duration
		return nil
	})
	if err != nil {
		return nil, err
	}

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
		target := sub.DiscordEntryID
		if pol.Action == policy.ActionCreateNew {
			target = ""
		}
		var pErr error
		res, pErr = c.publish(ctx, pol, sub.DiscordEntryID, target, data, tr.Text)
		return pErr
	})
	if err != nil {
		return nil, err
	}

	res.ProcessingMode = tr.Mode
	res.VideoURL = messageURL
	res.LengthMin = lengthMin(tr.Duration)
	return res, nil
}

// chatVideoInfo shapes message metadata into the VideoInfo the shared
// naming and publish paths expect. Chat videos have no host listing, so
// availability stays empty and maps to Unlisted.
func chatVideoInfo(messageURL string, meta *discord.MessageMetadata, att *discord.Attachment) *media.VideoInfo {
	title := strings.TrimSuffix(att.Filename, filepath.Ext(att.Filename))
	if title == "" {
		title = "Discord Video " + meta.MessageID
	}

	date := meta.Date
	if len(date) >= 10 {
		date = date[:10]
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	return &media.VideoInfo{
		URL:        messageURL,
		ID:         meta.MessageID,
		Title:      title,
		SafeTitle:  media.Sanitize(title),
		Channel:    meta.Channel,
		UploadDate: date,
	}
}
