// internal/action/placeholder.go
package action

import (
	"regexp"
	"strings"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Substitute replaces {{ name }} placeholders with caller-supplied values. Placeholders
// without a value are left verbatim.
func Substitute(stmt string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(stmt, "{{") {
		return stmt
	}
	return placeholderRegex.ReplaceAllStringFunc(stmt, func(m string) string {
		name := placeholderRegex.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct placeholder names in stmt, in order of appearance.
func Placeholders(stmt string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRegex.FindAllStringSubmatch(stmt, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Bind applies Substitute to each argument of a parsed command. Values are never read as
// statement syntax, so quotes, backslashes and newlines in them arrive at the page intact.
// The bound command is validated again since a value may empty a selector.
func (c Command) Bind(values map[string]string) (Command, error) {
	if len(values) == 0 {
		return c, nil
	}
	bound := Command{Verb: c.Verb, Args: make([]string, len(c.Args))}
	for i, a := range c.Args {
		bound.Args[i] = Substitute(a, values)
	}
	if err := validate(bound); err != nil {
		return Command{}, err
	}
	return bound, nil
}
