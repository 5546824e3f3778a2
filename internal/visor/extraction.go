package visor

import (
	"regexp"
	"strings"

	"github.com/slopoverlord/slopoverlord/internal/util/sanitize"
)

// titleMaxChars caps an extracted task title after HTML/control-char
// sanitization, matching the teacher's plan-title extraction limit.
const titleMaxChars = 128

// todoPattern is one recognized TODO marker shape. extractionPatterns is
// intentionally a slice (not a single composed regexp) so new marker
// shapes can be added without touching the scan loop, resolving the
// spec's open question about extensibility of the extraction rule set.
type todoPattern struct {
	name string
	re   *regexp.Regexp
	// group is the capture group index holding the extracted title text.
	group int
}

var extractionPatterns = []todoPattern{
	{name: "bullet_checkbox", re: regexp.MustCompile(`(?m)^\s*-\s*\[\s?\]\s*(.+)$`), group: 1},
	{name: "todo_prefix", re: regexp.MustCompile(`(?mi)^\s*TODO:\s*(.+)$`), group: 1},
	{name: "imperative_ru", re: regexp.MustCompile(`(?mi)^\s*нужно\s+(.+)$`), group: 1},
	{name: "imperative_en", re: regexp.MustCompile(`(?mi)^\s*prepare\s+(.+)$`), group: 1},
}

// extractedTODO is one raw extraction hit before deduplication.
type extractedTODO struct {
	Title  string
	Source string
}

// ExtractTODOs scans content for every recognized marker shape and
// returns one entry per match, deduplicated within the same message by
// normalized title (first occurrence wins).
func ExtractTODOs(content string) []extractedTODO {
	seen := make(map[string]struct{})
	var out []extractedTODO

	for _, p := range extractionPatterns {
		for _, m := range p.re.FindAllStringSubmatch(content, -1) {
			title := sanitize.Title(sanitize.StripHTML(strings.TrimSpace(m[p.group])), titleMaxChars)
			if title == "" {
				continue
			}
			key := normalizeTitle(title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, extractedTODO{Title: title, Source: p.name})
		}
	}
	return out
}

// normalizeTitle folds case and collapses whitespace so near-identical
// TODO titles within a message dedup to the same task.
func normalizeTitle(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	return strings.Join(fields, " ")
}
