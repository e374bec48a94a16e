// internal/orchestrator/state.go
package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of one step.
type State int

const (
	StatePending State = iota
	StateCacheHit
	StateTranslating
	StateTranslated
	StateExecuting
	StateConfirmed
	StateFailed
)

var stateNames = [...]string{"PENDING", "CACHE_HIT", "TRANSLATING", "TRANSLATED", "EXECUTING", "CONFIRMED", "FAILED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

var transitions = map[State][]State{
	StatePending:     {StateCacheHit, StateTranslating, StateFailed},
	StateCacheHit:    {StateExecuting, StateFailed},
	StateTranslating: {StateTranslated, StateFailed},
	StateTranslated:  {StateExecuting, StateFailed},
	StateExecuting:   {StateConfirmed, StateFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrIllegalTransition reports a state change the step lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal step transition")

// StepError describes the failure of one step. The remaining steps of the directive were not
// run.
type StepError struct {
	Index  int
	Step   string
	Action string
	// State is the state the step was in when it failed.
	State State
	Err   error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d %q failed while %s", e.Index+1, e.Step, strings.ToLower(e.State.String()))
	if e.Action != "" {
		fmt.Fprintf(&b, ": failed to execute generated action: %s", e.Action)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// humanizeDuration renders d as 300ms, 1.2s, 50s, 1m10s.
func humanizeDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60_000:
		s := fmt.Sprintf("%.1f", float64(ms)/1000)
		return strings.TrimSuffix(s, ".0") + "s"
	default:
		minutes := ms / 60_000
		seconds := (ms%60_000 + 500) / 1000
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
}
