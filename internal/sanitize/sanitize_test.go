// internal/sanitize/sanitize_test.go
package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestMarkup_RemovesBlocks(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "style with attributes",
			html:     `<div><style type="text/css">.a{color:red}</style><p>hi</p></div>`,
			expected: `<div><p>hi</p></div>`,
		},
		{
			name:     "multi-line script",
			html:     "<body><script>\nvar a = 1;\nconsole.log(a)\n</script><button id=\"go\">Go</button></body>",
			expected: `<body><button id="go">Go</button></body>`,
		},
		{
			name:     "case-insensitive tags",
			html:     `<STYLE>x</Style><Script src="a.js"></SCRIPT><input name="q">`,
			expected: `<input name="q">`,
		},
		{
			name:     "several blocks are removed lazily",
			html:     `<script>1</script><p>keep</p><script>2</script>`,
			expected: `<p>keep</p>`,
		},
		{
			name:     "unterminated block is left",
			html:     `<p>a</p><script>never closed`,
			expected: `<p>a</p><script>never closed`,
		},
		{
			name:     "style inside script content",
			html:     `<script>document.write("<style>")</script><p>x</p>`,
			expected: `<p>x</p>`,
		},
		{
			name:     "empty",
			html:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Markup(tt.html, 0))
		})
	}
}

func TestMarkup_Truncates(t *testing.T) {
	long := strings.Repeat("a", DefaultMaxLength+500)
	out := Markup(long, 0)
	assert.Len(t, out, DefaultMaxLength)

	assert.Equal(t, "abc", Markup("abcdef", 3))
}

func TestMarkup_TruncatesAfterStripping(t *testing.T) {
	html := "<style>" + strings.Repeat("x", 50) + "</style><p>short</p>"
	assert.Equal(t, "<p>short</p>", Markup(html, 20))
}

func TestMarkup_TruncationRespectsRunes(t *testing.T) {
	out := Markup("ééééé", 3)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "ééé", out)
}

func TestInspect(t *testing.T) {
	res := Inspect("<script>x</script>"+strings.Repeat("b", 30), 10)
	assert.True(t, res.Truncated)
	assert.Equal(t, 48, res.OriginalLength)
	assert.Equal(t, strings.Repeat("b", 10), res.HTML)

	res = Inspect("<p>ok</p>", 100)
	assert.False(t, res.Truncated)
}
