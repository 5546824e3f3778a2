package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.StrictPolicy()

// Title sanitizes a terminal title by removing control characters
// and limiting the length.
func Title(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if b.Len() >= maxLen {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// StripHTML strips HTML tags from s and decodes the entities
// bluemonday leaves behind, so content sourced from chat/channel
// messages can't smuggle markup into a title or task description.
func StripHTML(s string) string {
	return html.UnescapeString(htmlPolicy.Sanitize(s))
}
