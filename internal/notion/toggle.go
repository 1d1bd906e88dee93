package notion

import (
	"context"
	"strings"
	"unicode"

	"github.com/framefeed/vidscribe/internal/log"
)

// AppendTranscriptToggle appends one collapsible "Transcript" block whose
// children are the full text split into paragraph chunks within the API's
// per-fragment limit.
func (c *Client) AppendTranscriptToggle(ctx context.Context, pageID, text string) error {
	chunks := ChunkText(text, maxTextLen)
	if len(chunks) == 0 {
		return nil
	}

	children := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		children = append(children, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []map[string]any{
					{"type": "text", "text": map[string]any{"content": chunk}},
				},
			},
		})
	}

	toggle := map[string]any{
		"object": "block",
		"type":   "toggle",
		"toggle": map[string]any{
			"rich_text": []map[string]any{
				{"type": "text", "text": map[string]any{"content": "Transcript"}},
			},
			"children": children,
		},
	}

	if err := c.AppendBlocks(ctx, pageID, []map[string]any{toggle}); err != nil {
		return err
	}
	log.FromContext(ctx).Info().Int("paragraphs", len(chunks)).Msg("transcript toggle appended")
	return nil
}

// ChunkText splits text at whitespace boundaries into pieces of at most max
// characters. A single word longer than max is hard-split.
func ChunkText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		for len(word) > max {
			flush()
			chunks = append(chunks, word[:max])
			word = word[max:]
		}
		if word == "" {
			continue
		}

		need := len(word)
		if current.Len() > 0 {
			need++ // joining space
		}
		if current.Len()+need > max {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	flush()
	return chunks
}
