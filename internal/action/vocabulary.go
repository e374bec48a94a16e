// internal/action/vocabulary.go
package action

import (
	"fmt"
	"strings"
)

// Verb names one operation of the automation vocabulary.
type Verb string

const (
	VerbVisit          Verb = "visit"
	VerbClick          Verb = "click"
	VerbFill           Verb = "fill"
	VerbClear          Verb = "clear"
	VerbSelect         Verb = "select"
	VerbCheck          Verb = "check"
	VerbUncheck        Verb = "uncheck"
	VerbSubmit         Verb = "submit"
	VerbScrollTo       Verb = "scrollTo"
	VerbAssertText     Verb = "assertText"
	VerbAssertValue    Verb = "assertValue"
	VerbAssertVisible  Verb = "assertVisible"
	VerbAssertHidden   Verb = "assertHidden"
	VerbAssertEnabled  Verb = "assertEnabled"
	VerbAssertDisabled Verb = "assertDisabled"
	VerbAssertCount    Verb = "assertCount"
	VerbAssertTitle    Verb = "assertTitle"
	VerbAssertURL      Verb = "assertURL"
	VerbWait           Verb = "wait"
)

// ParamKind constrains the value of one argument.
type ParamKind int

const (
	ParamSelector ParamKind = iota
	ParamText
	ParamURL
	// ParamCount is a non-negative integer.
	ParamCount
)

// Param documents one argument of a verb.
type Param struct {
	Name string
	Kind ParamKind
}

// Definition describes a verb: its arguments, what it does, and an example for the backend.
type Definition struct {
	Verb    Verb
	Params  []Param
	Summary string
	Example string
}

var (
	selector = Param{Name: "selector", Kind: ParamSelector}
	text     = Param{Name: "text", Kind: ParamText}
	value    = Param{Name: "value", Kind: ParamText}
)

// definitions is the closed vocabulary, in the order it is presented to backends.
var definitions = []Definition{
	{VerbVisit, []Param{{Name: "url", Kind: ParamURL}}, "navigate to a URL", `visit("/login")`},
	{VerbClick, []Param{selector}, "click an element", `click("button[type=submit]")`},
	{VerbFill, []Param{selector, text}, "clear a field and type text into it", `fill("#username", "ann")`},
	{VerbClear, []Param{selector}, "clear a field", `clear("input[name=q]")`},
	{VerbSelect, []Param{selector, value}, "choose an option of a select element by value or label", `select("#country", "Canada")`},
	{VerbCheck, []Param{selector}, "check a checkbox or radio button", `check("#terms")`},
	{VerbUncheck, []Param{selector}, "uncheck a checkbox", `uncheck("#newsletter")`},
	{VerbSubmit, []Param{selector}, "submit a form", `submit("form#signup")`},
	{VerbScrollTo, []Param{selector}, "scroll an element into view", `scrollTo("footer")`},
	{VerbAssertText, []Param{selector, text}, "assert the element text contains text", `assertText("h1", "Welcome")`},
	{VerbAssertValue, []Param{selector, value}, "assert an input value equals value", `assertValue("#email", "a@b.c")`},
	{VerbAssertVisible, []Param{selector}, "assert an element is visible", `assertVisible(".toast")`},
	{VerbAssertHidden, []Param{selector}, "assert an element is hidden or absent", `assertHidden(".spinner")`},
	{VerbAssertEnabled, []Param{selector}, "assert a control is enabled", `assertEnabled("#save")`},
	{VerbAssertDisabled, []Param{selector}, "assert a control is disabled", `assertDisabled("#save")`},
	{VerbAssertCount, []Param{selector, {Name: "n", Kind: ParamCount}}, "assert the number of matching elements", `assertCount("li.todo", 3)`},
	{VerbAssertTitle, []Param{text}, "assert the document title contains text", `assertTitle("Dashboard")`},
	{VerbAssertURL, []Param{text}, "assert the current URL contains text", `assertURL("/dashboard")`},
	{VerbWait, []Param{{Name: "ms", Kind: ParamCount}}, "wait a number of milliseconds", `wait(500)`},
}

var byVerb = func() map[Verb]Definition {
	m := make(map[Verb]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Verb] = d
	}
	return m
}()

// Lookup returns the definition of a verb.
func Lookup(v Verb) (Definition, bool) {
	d, ok := byVerb[v]
	return d, ok
}

// Definitions returns the vocabulary in presentation order.
func Definitions() []Definition {
	return append([]Definition(nil), definitions...)
}

// Signature renders the verb with its parameter names, e.g. fill(selector, text).
func (d Definition) Signature() string {
	names := make([]string, len(d.Params))
	for i, p := range d.Params {
		names[i] = p.Name
	}
	return fmt.Sprintf("%s(%s)", d.Verb, strings.Join(names, ", "))
}

// Describe lists the vocabulary for inclusion in backend instructions.
func Describe() string {
	var b strings.Builder
	for _, d := range definitions {
		fmt.Fprintf(&b, "- %s: %s. Example: %s\n", d.Signature(), d.Summary, d.Example)
	}
	return strings.TrimRight(b.String(), "\n")
}
