// internal/directive/directive.go
package directive

import (
	"strings"
)

// commentPrefix marks a line that is kept in the source for readers but never executed.
const commentPrefix = "//"

// Directive is a natural-language instruction block. It is either a single multi-line text or
// an ordered list of lines.
type Directive struct {
	text    string
	lines   []string
	isLines bool
}

// Text builds a directive from a single block of text.
func Text(s string) Directive {
	return Directive{text: s}
}

// Lines builds a directive from an ordered list of steps.
func Lines(lines ...string) Directive {
	return Directive{lines: append([]string(nil), lines...), isLines: true}
}

// IsList reports whether the directive was given as a list. A list cannot be rewritten in
// place because its source form is not a single literal.
func (d Directive) IsList() bool {
	return d.isLines
}

// Source returns the directive as written: the original text, or the lines joined by newlines.
func (d Directive) Source() string {
	if d.isLines {
		return strings.Join(d.lines, "\n")
	}
	return d.text
}

// Split returns the executable steps in order: trimmed, non-empty, and not comments.
func (d Directive) Split() []string {
	raw := d.lines
	if !d.isLines {
		raw = strings.Split(strings.ReplaceAll(d.text, "\r\n", "\n"), "\n")
	}
	return filter(raw)
}

// Split is a convenience for Text(s).Split().
func Split(s string) []string {
	return Text(s).Split()
}

func filter(raw []string) []string {
	steps := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		steps = append(steps, line)
	}
	return steps
}
