// internal/orchestrator/subject.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/action"
	"github.com/xkilldash9x/cythink/internal/browser"
	"github.com/xkilldash9x/cythink/internal/directive"
)

// Subject is a scope that directives run in: the whole document or one element subtree. A
// failed directive leaves the subject failed; later calls on it do nothing.
type Subject struct {
	thinker *Thinker
	scope   string
	last    *Outcome
	err     error
}

// Option configures a single Think or Steps call.
type Option func(*callOptions)

type callOptions struct {
	placeholders map[string]string
}

// WithPlaceholders substitutes {{ name }} in actions before they execute.
func WithPlaceholders(values map[string]string) Option {
	return func(o *callOptions) { o.placeholders = values }
}

func applyOptions(opts []Option) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Scope returns the selector of the subject, "" for the document.
func (s *Subject) Scope() string {
	return s.scope
}

// Get narrows the subject to a descendant. The new subject inherits a previous failure.
func (s *Subject) Get(selector string) *Subject {
	return &Subject{thinker: s.thinker, scope: browser.JoinScope(s.scope, selector), err: s.err}
}

// Err returns the first failure of a directive run on this subject.
func (s *Subject) Err() error {
	return s.err
}

// Last returns the outcome of the most recent Think or Steps call.
func (s *Subject) Last() *Outcome {
	return s.last
}

// Think translates and executes every step of d in order and returns s for chaining.
func (s *Subject) Think(ctx context.Context, d directive.Directive, opts ...Option) *Subject {
	if s.err != nil {
		return s
	}
	t := s.thinker
	o := applyOptions(opts)
	outcome := s.newOutcome(d)
	s.last = outcome
	log := t.logger.With(zap.String("invocation_id", outcome.InvocationID), zap.String("scope", s.scope))

	steps := d.Split()
	if len(steps) == 0 {
		log.Debug("Directive has no steps.")
		return s
	}
	log.Info("Thinking.", zap.Int("steps", len(steps)), zap.String("test", t.testID))

	for i, step := range steps {
		res := s.runStep(ctx, log, i, step, o)
		outcome.Steps = append(outcome.Steps, res)
		if res.FromCache {
			outcome.TokensSaved += res.TokenUsage
		} else {
			outcome.TokensUsed += res.TokenUsage
		}
		if res.Backend.Client != "" {
			outcome.Backend = res.Backend
		}
		if res.Err != nil {
			outcome.Err = res.Err
			s.err = res.Err
			return s
		}
	}

	log.Info("Thinking accomplished.",
		zap.String("client", string(outcome.Backend.Client)),
		zap.String("model", outcome.Backend.Model),
		zap.Int("tokens_used", outcome.TokensUsed),
		zap.Int("tokens_saved", outcome.TokensSaved),
	)
	t.save(ctx, outcome)
	return s
}

// runStep moves one step through its lifecycle. The returned result is terminal.
func (s *Subject) runStep(ctx context.Context, log *zap.Logger, index int, step string, o callOptions) StepResult {
	t := s.thinker
	res := StepResult{Index: index, Text: step, State: StatePending}
	log = log.With(zap.Int("step", index+1), zap.String("prompt", step))
	log.Info("Step started.")
	start := time.Now()

	fail := func(cause error) StepResult {
		failedIn := res.State
		res.State = StateFailed
		res.Duration = time.Since(start)
		res.Err = &StepError{Index: index, Step: step, Action: res.Action, State: failedIn, Err: cause}
		if res.Fingerprint != "" && !res.FromCache {
			t.abandon(ctx, res.Fingerprint)
		}
		t.recordOutcome(&res)
		log.Error("Step failed.", zap.String("state", failedIn.String()), zap.String("action", res.Action), zap.Error(cause))
		return res
	}
	to := func(next State) error {
		if !res.State.CanTransition(next) {
			return t.illegal(res.State, next)
		}
		res.State = next
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	html, err := t.interp.Driver().HTML(ctx, s.scope)
	if err != nil {
		return fail(fmt.Errorf("failed to snapshot markup: %w", err))
	}

	resp, err := t.translator.Translate(ctx, schemas.TaskRequest{
		DirectiveText:  step,
		HTMLContext:    html,
		SpecIdentifier: t.specID,
		TestIdentifier: t.testID,
	})
	if err != nil {
		return fail(err)
	}
	res.Fingerprint = resp.Fingerprint
	res.Action = resp.Action
	res.FromCache = resp.FromCache
	res.TokenUsage = resp.TokenUsage
	res.Backend = schemas.BackendIdentity{Client: resp.Client, Model: resp.Model}

	if resp.FromCache {
		if err := to(StateCacheHit); err != nil {
			return fail(err)
		}
		log.Info("Using cached action.", zap.String("action", resp.Action), zap.Int("tokens_saved", resp.TokenUsage))
	} else {
		if err := to(StateTranslating); err != nil {
			return fail(err)
		}
		if err := to(StateTranslated); err != nil {
			return fail(err)
		}
		timing := ""
		if resp.DurationMs > 0 {
			timing = humanizeDuration(time.Duration(resp.DurationMs) * time.Millisecond)
		}
		log.Info("Generated action.",
			zap.String("action", resp.Action),
			zap.Int("tokens_used", resp.TokenUsage),
			zap.String("took", timing),
		)
	}

	if err := to(StateExecuting); err != nil {
		return fail(err)
	}
	cmd, err := action.Parse(resp.Action)
	if err != nil {
		return fail(err)
	}
	if cmd, err = cmd.Bind(o.placeholders); err != nil {
		return fail(err)
	}
	if err := t.interp.Execute(ctx, s.scope, cmd); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if err := to(StateConfirmed); err != nil {
		return fail(err)
	}
	res.Duration = time.Since(start)
	if !res.FromCache {
		t.promote(ctx, res.Fingerprint)
	}
	t.recordOutcome(&res)
	return res
}

// Steps executes a previously generated block in the subject's scope without translation.
// Comment lines are skipped.
func (s *Subject) Steps(ctx context.Context, block string, opts ...Option) *Subject {
	if s.err != nil {
		return s
	}
	t := s.thinker
	o := applyOptions(opts)
	outcome := s.newOutcome(directive.Text(block))
	s.last = outcome

	cmds, err := action.ParseBlock(block)
	if err != nil && !errors.Is(err, action.ErrEmpty) {
		outcome.Err = fmt.Errorf("invalid generated block: %w", err)
		s.err = outcome.Err
		return s
	}
	bound := make([]action.Command, len(cmds))
	for i := range cmds {
		if bound[i], err = cmds[i].Bind(o.placeholders); err != nil {
			outcome.Err = fmt.Errorf("invalid generated block: %w", err)
			s.err = outcome.Err
			return s
		}
	}

	// Results carry the templates so placeholder values stay out of outcomes.
	for i, cmd := range cmds {
		res := StepResult{Index: i, Text: cmd.String(), Action: cmd.String(), State: StateExecuting, FromCache: true}
		if err := t.interp.Execute(ctx, s.scope, bound[i]); err != nil {
			res.State = StateFailed
			res.Err = &StepError{Index: i, Step: res.Text, Action: res.Action, State: StateExecuting, Err: err}
			outcome.Steps = append(outcome.Steps, res)
			outcome.Err = res.Err
			s.err = res.Err
			return s
		}
		res.State = StateConfirmed
		outcome.Steps = append(outcome.Steps, res)
	}
	t.logger.Debug("Executed generated block.", zap.String("invocation_id", outcome.InvocationID), zap.Int("commands", len(cmds)))
	return s
}

func (s *Subject) newOutcome(d directive.Directive) *Outcome {
	return &Outcome{
		InvocationID:   uuid.NewString(),
		SpecIdentifier: s.thinker.specID,
		TestIdentifier: s.thinker.testID,
		Directive:      d,
		Scope:          s.scope,
	}
}
