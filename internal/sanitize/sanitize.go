// internal/sanitize/sanitize.go
package sanitize

import (
	"regexp"
	"unicode/utf8"
)

// DefaultMaxLength is the number of characters of markup sent to a backend when the caller
// does not configure a limit.
const DefaultMaxLength = 10_000

var (
	styleBlockRegex  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlockRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
)

// Result describes what Markup removed, for debug logging.
type Result struct {
	HTML           string
	OriginalLength int
	Truncated      bool
}

// Markup strips style and script blocks from html and truncates the rest to maxLen
// characters. Unterminated blocks are left as they are. A non-positive maxLen selects
// DefaultMaxLength.
func Markup(html string, maxLen int) string {
	return Inspect(html, maxLen).HTML
}

// Inspect is Markup with details about the transformation.
func Inspect(html string, maxLen int) Result {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	res := Result{OriginalLength: utf8.RuneCountInString(html)}
	if html == "" {
		return res
	}

	out := styleBlockRegex.ReplaceAllString(html, "")
	out = scriptBlockRegex.ReplaceAllString(out, "")

	if utf8.RuneCountInString(out) > maxLen {
		out = truncateRunes(out, maxLen)
		res.Truncated = true
	}
	res.HTML = out
	return res
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
