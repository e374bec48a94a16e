// internal/orchestrator/outcome.go
package orchestrator

import (
	"strings"
	"time"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/directive"
)

// StepResult is the record of one step.
type StepResult struct {
	Index       int
	Text        string
	Fingerprint string
	// Action is the statement as translated, before placeholder substitution.
	Action     string
	State      State
	FromCache  bool
	TokenUsage int
	Backend    schemas.BackendIdentity
	Duration   time.Duration
	Err        error
}

// Outcome is the record of one invocation.
type Outcome struct {
	InvocationID   string
	SpecIdentifier string
	TestIdentifier string
	Directive      directive.Directive
	Scope          string
	Steps          []StepResult
	// Backend is the identity of the last backend that answered a step.
	Backend     schemas.BackendIdentity
	TokensUsed  int
	TokensSaved int
	Err         error
}

// Succeeded reports whether every step was confirmed.
func (o *Outcome) Succeeded() bool {
	if o.Err != nil {
		return false
	}
	for _, s := range o.Steps {
		if s.State != StateConfirmed {
			return false
		}
	}
	return true
}

// GeneratedBlock renders the confirmed steps as the block a rewritten spec executes: each
// action preceded by its step as a comment.
func (o *Outcome) GeneratedBlock() string {
	lines := make([]string, 0, 2*len(o.Steps))
	for _, s := range o.Steps {
		if s.State != StateConfirmed {
			continue
		}
		lines = append(lines, "// "+s.Text, s.Action)
	}
	return strings.Join(lines, "\n")
}

// Rewritable reports whether the directive can be replaced in its source file. List
// directives are never rewritten.
func (o *Outcome) Rewritable() bool {
	return !o.Directive.IsList() && len(o.Steps) > 0 && o.Succeeded()
}

// SaveRequest builds the request that replaces the directive with the generated block.
func (o *Outcome) SaveRequest() (schemas.SaveGeneratedThoughtRequest, bool) {
	if !o.Rewritable() {
		return schemas.SaveGeneratedThoughtRequest{}, false
	}
	return schemas.SaveGeneratedThoughtRequest{
		SpecIdentifier:       o.SpecIdentifier,
		TestIdentifier:       o.TestIdentifier,
		DirectiveText:        o.Directive.Source(),
		GeneratedActionBlock: o.GeneratedBlock(),
	}, true
}
