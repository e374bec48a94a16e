// File: internal/orchestrator/thinker.go
// Description: Runs natural-language directives step by step against the automation engine.
// It is injected with the translator, the promoter and the interpreter via interfaces, so the
// cache can live in this process or in the companion server.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/browser"
	"github.com/xkilldash9x/cythink/internal/observability"
)

// Thinker creates subjects bound to one spec and test.
type Thinker struct {
	translator schemas.TaskTranslator
	promoter   schemas.Promoter
	interp     *browser.Interpreter
	recorder   schemas.ThoughtRecorder
	specID     string
	testID     string
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// ThinkerOption configures a Thinker.
type ThinkerOption func(*Thinker)

// WithTest sets the spec and test identifiers that key the cache.
func WithTest(specID, testID string) ThinkerOption {
	return func(t *Thinker) {
		t.specID = specID
		t.testID = testID
	}
}

// WithMetrics records step outcomes on m.
func WithMetrics(m *observability.Metrics) ThinkerOption {
	return func(t *Thinker) { t.metrics = m }
}

// WithRecorder rewrites the source of every directive that fully succeeds.
func WithRecorder(r schemas.ThoughtRecorder) ThinkerOption {
	return func(t *Thinker) { t.recorder = r }
}

// NewThinker creates a Thinker. Translator, promoter and interpreter are required.
func NewThinker(
	translator schemas.TaskTranslator,
	promoter schemas.Promoter,
	interp *browser.Interpreter,
	logger *zap.Logger,
	opts ...ThinkerOption,
) (*Thinker, error) {
	if translator == nil || promoter == nil || interp == nil || logger == nil {
		return nil, errors.New("cannot initialize thinker with nil dependencies")
	}
	t := &Thinker{
		translator: translator,
		promoter:   promoter,
		interp:     interp,
		logger:     logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = observability.NopMetrics()
	}
	return t, nil
}

// ForTest returns a copy of t bound to another spec and test.
func (t *Thinker) ForTest(specID, testID string) *Thinker {
	clone := *t
	clone.specID = specID
	clone.testID = testID
	return &clone
}

// Document returns a subject scoped to the whole document.
func (t *Thinker) Document() *Subject {
	return &Subject{thinker: t}
}

// Get returns a subject scoped to the first element matching selector.
func (t *Thinker) Get(selector string) *Subject {
	return &Subject{thinker: t, scope: selector}
}

// save hands a successful outcome to the recorder. Failures are logged only.
func (t *Thinker) save(ctx context.Context, o *Outcome) {
	if t.recorder == nil {
		return
	}
	req, ok := o.SaveRequest()
	if !ok {
		return
	}
	if err := t.recorder.SaveGeneratedThought(ctx, req); err != nil {
		t.logger.Warn("Failed to save generated code.",
			zap.String("invocation_id", o.InvocationID),
			zap.String("spec", o.SpecIdentifier),
			zap.Error(err),
		)
		return
	}
	t.logger.Info("Saved generated code.", zap.String("spec", o.SpecIdentifier), zap.String("test", o.TestIdentifier))
}

func (t *Thinker) promote(ctx context.Context, fingerprint string) {
	promoted, err := t.promoter.Promote(ctx, fingerprint)
	switch {
	case err != nil:
		t.logger.Warn("Failed to promote confirmed translation.", zap.String("fingerprint", fingerprint), zap.Error(err))
	case !promoted:
		t.logger.Warn("Confirmed translation was no longer pending.", zap.String("fingerprint", fingerprint))
	}
}

func (t *Thinker) abandon(ctx context.Context, fingerprint string) {
	if err := t.translator.Abandon(ctx, fingerprint); err != nil {
		t.logger.Debug("Failed to abandon pending translation.", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}

func stepSource(fromCache bool) string {
	if fromCache {
		return "cache"
	}
	return "backend"
}

func (t *Thinker) recordOutcome(res *StepResult) {
	outcome := observability.OutcomeConfirmed
	if res.State == StateFailed {
		outcome = observability.OutcomeFailed
	}
	t.metrics.StepOutcomes.WithLabelValues(outcome, stepSource(res.FromCache)).Inc()
}

func (t *Thinker) illegal(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
