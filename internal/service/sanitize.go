package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans user-supplied text before it is stored.
//
// Entry content is rich text and keeps safe formatting through the UGC
// policy. Every other field is plain text: the strict policy drops all
// markup and the result is unescaped again, so "Tom & Jerry" round-trips
// unchanged. Unescaping can expose markup that was entity-encoded in the
// input, so PlainText repeats until the value is stable. Both policies are
// safe for concurrent use.
type Sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer builds both policies. Build one per service and reuse it.
func NewSanitizer() *Sanitizer {
	rich := bluemonday.UGCPolicy()
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// RichText sanitizes HTML content, keeping safe tags.
func (s *Sanitizer) RichText(in string) string {
	return s.rich.Sanitize(in)
}

// maxPlainTextRounds bounds the sanitize/unescape loop in PlainText. Each
// round peels one level of entity encoding.
const maxPlainTextRounds = 8

// PlainText strips all markup and surrounding whitespace. The result never
// contains an element, including one the input hid behind "&lt;".
func (s *Sanitizer) PlainText(in string) string {
	out := in
	for range maxPlainTextRounds {
		next := html.UnescapeString(s.plain.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// Still changing: keep the escaped form.
	return strings.TrimSpace(s.plain.Sanitize(out))
}

// Themes cleans each theme and drops the ones left empty.
func (s *Sanitizer) Themes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = s.PlainText(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
