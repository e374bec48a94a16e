// internal/browser/interpreter.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/internal/action"
)

// DefaultRetryTimeout bounds how long a command keeps retrying a missing element or a failing
// assertion while the page settles.
const DefaultRetryTimeout = 4 * time.Second

// CommandHandler executes one command against the driver.
type CommandHandler func(ctx context.Context, scope string, cmd action.Command) error

// Interpreter maps parsed commands onto driver calls.
type Interpreter struct {
	driver       Driver
	logger       *zap.Logger
	handlers     map[action.Verb]CommandHandler
	retryTimeout time.Duration
	retryEvery   time.Duration
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithRetryTimeout overrides DefaultRetryTimeout. Zero disables retries.
func WithRetryTimeout(d time.Duration) InterpreterOption {
	return func(i *Interpreter) { i.retryTimeout = d }
}

// NewInterpreter creates an interpreter with a handler for every verb of the vocabulary.
func NewInterpreter(driver Driver, logger *zap.Logger, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		driver:       driver,
		logger:       logger.Named("interpreter"),
		handlers:     make(map[action.Verb]CommandHandler),
		retryTimeout: DefaultRetryTimeout,
		retryEvery:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.registerHandlers()
	return i
}

// Driver returns the underlying driver.
func (i *Interpreter) Driver() Driver {
	return i.driver
}

func (i *Interpreter) registerHandlers() {
	i.handlers[action.VerbVisit] = i.handleVisit
	i.handlers[action.VerbClick] = i.elementAction(i.driver.Click)
	i.handlers[action.VerbClear] = i.elementAction(i.driver.Clear)
	i.handlers[action.VerbSubmit] = i.elementAction(i.driver.Submit)
	i.handlers[action.VerbScrollTo] = i.elementAction(i.driver.ScrollIntoView)
	i.handlers[action.VerbFill] = i.handleFill
	i.handlers[action.VerbSelect] = i.handleSelect
	i.handlers[action.VerbCheck] = i.handleChecked(true)
	i.handlers[action.VerbUncheck] = i.handleChecked(false)
	i.handlers[action.VerbAssertText] = i.handleAssertText
	i.handlers[action.VerbAssertValue] = i.handleAssertValue
	i.handlers[action.VerbAssertVisible] = i.handleAssertVisible(true)
	i.handlers[action.VerbAssertHidden] = i.handleAssertVisible(false)
	i.handlers[action.VerbAssertEnabled] = i.handleAssertEnabled(true)
	i.handlers[action.VerbAssertDisabled] = i.handleAssertEnabled(false)
	i.handlers[action.VerbAssertCount] = i.handleAssertCount
	i.handlers[action.VerbAssertTitle] = i.handleAssertTitle
	i.handlers[action.VerbAssertURL] = i.handleAssertURL
	i.handlers[action.VerbWait] = i.handleWait
}

// Execute runs one command in scope. Missing elements and failing assertions are retried
// until the retry timeout elapses.
func (i *Interpreter) Execute(ctx context.Context, scope string, cmd action.Command) error {
	handler, ok := i.handlers[cmd.Verb]
	if !ok {
		return fmt.Errorf("no handler registered for verb: %s", cmd.Verb)
	}
	i.logger.Debug("Executing command.", zap.String("scope", scope), zap.Stringer("command", cmd))

	if i.retryTimeout <= 0 || cmd.Verb == action.VerbWait || cmd.Verb == action.VerbVisit {
		return handler(ctx, scope, cmd)
	}

	b := backoff.NewConstantBackOff(i.retryEvery)
	deadline := time.Now().Add(i.retryTimeout)
	operation := func() error {
		err := handler(ctx, scope, cmd)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || time.Now().After(deadline) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Run executes commands in order and stops at the first failure.
func (i *Interpreter) Run(ctx context.Context, scope string, cmds []action.Command) error {
	for _, cmd := range cmds {
		if err := i.Execute(ctx, scope, cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrNoElement) || errors.Is(err, ErrAssertion)
}

// -- Handlers --

func (i *Interpreter) elementAction(fn func(ctx context.Context, scope, selector string) error) CommandHandler {
	return func(ctx context.Context, scope string, cmd action.Command) error {
		return fn(ctx, scope, cmd.Arg(0))
	}
}

func (i *Interpreter) handleVisit(ctx context.Context, _ string, cmd action.Command) error {
	return i.driver.Navigate(ctx, cmd.Arg(0))
}

func (i *Interpreter) handleFill(ctx context.Context, scope string, cmd action.Command) error {
	return i.driver.Fill(ctx, scope, cmd.Arg(0), cmd.Arg(1))
}

func (i *Interpreter) handleSelect(ctx context.Context, scope string, cmd action.Command) error {
	return i.driver.Select(ctx, scope, cmd.Arg(0), cmd.Arg(1))
}

func (i *Interpreter) handleChecked(checked bool) CommandHandler {
	return func(ctx context.Context, scope string, cmd action.Command) error {
		return i.driver.SetChecked(ctx, scope, cmd.Arg(0), checked)
	}
}

func (i *Interpreter) handleAssertText(ctx context.Context, scope string, cmd action.Command) error {
	text, err := i.driver.Text(ctx, scope, cmd.Arg(0))
	if err != nil {
		return err
	}
	if !strings.Contains(normalizeSpace(text), normalizeSpace(cmd.Arg(1))) {
		return fmt.Errorf("%w: expected %q to contain %q", ErrAssertion, text, cmd.Arg(1))
	}
	return nil
}

func (i *Interpreter) handleAssertValue(ctx context.Context, scope string, cmd action.Command) error {
	value, err := i.driver.Value(ctx, scope, cmd.Arg(0))
	if err != nil {
		return err
	}
	if value != cmd.Arg(1) {
		return fmt.Errorf("%w: expected value %q, got %q", ErrAssertion, cmd.Arg(1), value)
	}
	return nil
}

func (i *Interpreter) handleAssertVisible(want bool) CommandHandler {
	return func(ctx context.Context, scope string, cmd action.Command) error {
		visible, err := i.driver.Visible(ctx, scope, cmd.Arg(0))
		if err != nil {
			return err
		}
		if visible != want {
			return fmt.Errorf("%w: expected %q to be %s", ErrAssertion, cmd.Arg(0), visibilityWord(want))
		}
		return nil
	}
}

func (i *Interpreter) handleAssertEnabled(want bool) CommandHandler {
	return func(ctx context.Context, scope string, cmd action.Command) error {
		enabled, err := i.driver.Enabled(ctx, scope, cmd.Arg(0))
		if err != nil {
			return err
		}
		if enabled != want {
			state := "enabled"
			if !want {
				state = "disabled"
			}
			return fmt.Errorf("%w: expected %q to be %s", ErrAssertion, cmd.Arg(0), state)
		}
		return nil
	}
}

func (i *Interpreter) handleAssertCount(ctx context.Context, scope string, cmd action.Command) error {
	want, err := strconv.Atoi(cmd.Arg(1))
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", cmd.Arg(1), err)
	}
	got, err := i.driver.Count(ctx, scope, cmd.Arg(0))
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: expected %d element(s) matching %q, found %d", ErrAssertion, want, cmd.Arg(0), got)
	}
	return nil
}

func (i *Interpreter) handleAssertTitle(ctx context.Context, _ string, cmd action.Command) error {
	title, err := i.driver.Title(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(title, cmd.Arg(0)) {
		return fmt.Errorf("%w: expected title %q to contain %q", ErrAssertion, title, cmd.Arg(0))
	}
	return nil
}

func (i *Interpreter) handleAssertURL(ctx context.Context, _ string, cmd action.Command) error {
	url, err := i.driver.URL(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(url, cmd.Arg(0)) {
		return fmt.Errorf("%w: expected URL %q to contain %q", ErrAssertion, url, cmd.Arg(0))
	}
	return nil
}

func (i *Interpreter) handleWait(ctx context.Context, _ string, cmd action.Command) error {
	ms, err := strconv.Atoi(cmd.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid wait duration %q: %w", cmd.Arg(0), err)
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func visibilityWord(visible bool) string {
	if visible {
		return "visible"
	}
	return "hidden"
}

// normalizeSpace collapses runs of whitespace the way rendered text does.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
