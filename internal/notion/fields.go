package notion

import (
	"strings"

	"github.com/framefeed/vidscribe/internal/policy"
)

// maxTextLen is the API's limit for a single rich-text fragment.
const maxTextLen = 2000

// TitleProperty builds a title property fragment.
func TitleProperty(text string) map[string]any {
	return map[string]any{
		"title": []map[string]any{
			{"text": map[string]any{"content": text}},
		},
	}
}

// TextProperty builds a rich-text property fragment, truncated to the API's
// 2000-character limit.
func TextProperty(text string) map[string]any {
	return map[string]any{
		"rich_text": []map[string]any{
			{"text": map[string]any{"content": truncate(text, maxTextLen)}},
		},
	}
}

// URLProperty builds a url property fragment.
func URLProperty(url string) map[string]any {
	return map[string]any{"url": url}
}

// FileProperty builds a files property fragment with one external file.
func FileProperty(name, url string) map[string]any {
	return map[string]any{
		"files": []map[string]any{
			{
				"name":     name,
				"type":     "external",
				"external": map[string]any{"url": url},
			},
		},
	}
}

// SelectProperty builds a single-select property fragment.
func SelectProperty(name string) map[string]any {
	return map[string]any{"select": map[string]any{"name": name}}
}

// DateProperty builds a date property fragment, start only.
func DateProperty(start string) map[string]any {
	return map[string]any{"date": map[string]any{"start": start}}
}

// NumberProperty builds a number property fragment.
func NumberProperty(v float64) map[string]any {
	return map[string]any{"number": v}
}

// PropertyForField dispatches a logical value to the right builder based on
// the field's implied type. File fields derive their display name from the
// logical key. Returns false for nil-ish values, which the caller skips.
func PropertyForField(f policy.Field, value any) (map[string]any, bool) {
	switch f.Type {
	case policy.TypeTitle:
		s, ok := nonEmptyString(value)
		if !ok {
			return nil, false
		}
		return TitleProperty(s), true
	case policy.TypeText:
		s, ok := nonEmptyString(value)
		if !ok {
			return nil, false
		}
		return TextProperty(s), true
	case policy.TypeURL:
		s, ok := nonEmptyString(value)
		if !ok {
			return nil, false
		}
		return URLProperty(s), true
	case policy.TypeFile:
		s, ok := nonEmptyString(value)
		if !ok {
			return nil, false
		}
		name := "Transcript.txt"
		if strings.Contains(f.Key, "srt") {
			name = "Transcript.srt"
		}
		return FileProperty(name, s), true
	case policy.TypeSelect:
		s, ok := nonEmptyString(value)
		if !ok {
			return nil, false
		}
		return SelectProperty(s), true
	case policy.TypeDate:
		s, ok := nonEmptyString(value)
		if !ok {
			return nil, false
		}
		return DateProperty(s), true
	case policy.TypeNumber:
		switch n := value.(type) {
		case float64:
			return NumberProperty(n), true
		case int:
			return NumberProperty(float64(n)), true
		}
		return nil, false
	}
	return nil, false
}

func nonEmptyString(value any) (string, bool) {
	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// truncate cuts at a rune boundary, never mid-character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Extraction helpers for reading typed values back out of a page.

// PlainTitle returns the concatenated text of a title property.
func PlainTitle(p Property) string {
	return joinRichText(p.Title)
}

// PlainText returns the concatenated text of a rich-text property.
func PlainText(p Property) string {
	return joinRichText(p.RichText)
}

// SelectName returns the chosen option of a select property.
func SelectName(p Property) string {
	if p.Select == nil {
		return ""
	}
	return p.Select.Name
}

// URLValue returns a url property's value.
func URLValue(p Property) string {
	if p.URL == nil {
		return ""
	}
	return *p.URL
}

// DateStart returns a date property's start value.
func DateStart(p Property) string {
	if p.Date == nil {
		return ""
	}
	return p.Date.Start
}

// HasFiles reports whether a files property holds at least one file.
func HasFiles(p Property) bool {
	return len(p.Files) > 0
}

func joinRichText(rt []RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
			continue
		}
		b.WriteString(r.Text.Content)
	}
	return b.String()
}
