// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoElement is returned when a selector matches nothing within the scope.
	ErrNoElement = errors.New("no element found")
	// ErrAssertion is returned when an assertion does not hold.
	ErrAssertion = errors.New("assertion failed")
)

// Driver is the automation engine capability used to execute commands. Every element method
// resolves selector inside the first element matching scope; an empty scope is the whole
// document.
type Driver interface {
	// HTML returns the inner HTML of the scope element, or the outer HTML of the body for an
	// empty scope.
	HTML(ctx context.Context, scope string) (string, error)
	Navigate(ctx context.Context, url string) error

	Click(ctx context.Context, scope, selector string) error
	// Fill clears the field and types text into it.
	Fill(ctx context.Context, scope, selector, text string) error
	Clear(ctx context.Context, scope, selector string) error
	// Select chooses the option whose value or label equals value.
	Select(ctx context.Context, scope, selector, value string) error
	SetChecked(ctx context.Context, scope, selector string, checked bool) error
	Submit(ctx context.Context, scope, selector string) error
	ScrollIntoView(ctx context.Context, scope, selector string) error

	Text(ctx context.Context, scope, selector string) (string, error)
	Value(ctx context.Context, scope, selector string) (string, error)
	// Visible reports false without error when nothing matches.
	Visible(ctx context.Context, scope, selector string) (bool, error)
	Enabled(ctx context.Context, scope, selector string) (bool, error)
	Count(ctx context.Context, scope, selector string) (int, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}

// JoinScope narrows a scope to a descendant selector. Selector lists on either side are
// distributed, so "form" joined with "a, b" is "form a, form b" and never matches b outside
// the form.
func JoinScope(scope, selector string) string {
	scopes := SplitSelectorList(scope)
	selectors := SplitSelectorList(selector)
	switch {
	case len(scopes) == 0:
		return strings.Join(selectors, ", ")
	case len(selectors) == 0:
		return strings.Join(scopes, ", ")
	}
	joined := make([]string, 0, len(scopes)*len(selectors))
	for _, sc := range scopes {
		for _, sel := range selectors {
			joined = append(joined, sc+" "+sel)
		}
	}
	return strings.Join(joined, ", ")
}

// SplitSelectorList splits a CSS selector list on its top-level commas. Commas inside
// brackets, parentheses or quoted strings do not separate selectors. Empty items are dropped.
func SplitSelectorList(list string) []string {
	var (
		items []string
		depth int
		quote byte
		start int
	)
	add := func(end int) {
		if item := strings.TrimSpace(list[start:end]); item != "" {
			items = append(items, item)
		}
	}
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '\\':
			i++
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			add(i)
			start = i + 1
		}
	}
	add(len(list))
	return items
}
