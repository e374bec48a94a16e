// internal/llmutil/normalize.go
package llmutil

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// NormalizeAction removes the markdown wrapping language models tend to put around a single
// statement: a fenced block (```js ... ```) loses its first and last lines, and an inline code
// span loses one backtick on each side. The wrapping is peeled until nothing changes, so the
// function is idempotent.
func NormalizeAction(raw string) string {
	out := strings.TrimSpace(raw)
	for {
		next := peel(out)
		if next == out {
			return out
		}
		out = next
	}
}

// peel removes one layer of wrapping.
func peel(s string) string {
	if strings.HasPrefix(s, fence) && strings.HasSuffix(s, fence) {
		lines := strings.Split(s, "\n")
		if len(lines) <= 2 {
			return ""
		}
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	if len(s) > 1 && strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// Preview shortens s to at most maxLen runes for log fields, marking the cut with an ellipsis.
func Preview(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
