package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/browser"
	"github.com/xkilldash9x/cythink/internal/browser/htmldoc"
	"github.com/xkilldash9x/cythink/internal/directive"
	"github.com/xkilldash9x/cythink/internal/fingerprint"
	"github.com/xkilldash9x/cythink/internal/mocks"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/store"
	"github.com/xkilldash9x/cythink/internal/translate"
)

const (
	specID = "cypress/e2e/login.cy.js"
	testID = "login > logs in"
)

const loginPage = `<html><head><title>Login</title></head><body>
<form id="login">
  <input id="username" name="username">
  <input id="password" name="password" type="password">
  <button id="submit" type="submit">Sign in</button>
</form>
<div id="sidebar"><a class="help" href="#help">Help</a></div>
</body></html>`

type harness struct {
	client    *mocks.ScriptedClient
	cachePath string
	cache     *store.Cache
	svc       *translate.Service
	driver    *htmldoc.Driver
	metrics   *observability.Metrics
	thinker   *Thinker
}

func newHarness(t *testing.T, answers map[string]string, opts ...ThinkerOption) *harness {
	t.Helper()
	h := &harness{
		client: &mocks.ScriptedClient{
			ID:      schemas.BackendIdentity{Client: schemas.ClientOpenAI, Model: "gpt-4.1"},
			Answers: answers,
			Tokens:  100,
		},
		cachePath: filepath.Join(t.TempDir(), "thoughts.json"),
	}
	h.reopen(t, opts...)
	return h
}

// reopen builds a fresh process over the same cache file and a fresh page.
func (h *harness) reopen(t *testing.T, opts ...ThinkerOption) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h.metrics = observability.NopMetrics()

	cache, err := store.NewCache(context.Background(), store.NewFileStore(h.cachePath), 64, logger, h.metrics)
	require.NoError(t, err)
	h.cache = cache
	h.svc = translate.NewService(h.client, cache, translate.Settings{}, logger, h.metrics)

	h.driver, err = htmldoc.NewFromHTML(loginPage, logger)
	require.NoError(t, err)
	interp := browser.NewInterpreter(h.driver, logger, browser.WithRetryTimeout(0))

	opts = append([]ThinkerOption{WithTest(specID, testID), WithMetrics(h.metrics)}, opts...)
	h.thinker, err = NewThinker(h.svc, h.svc, interp, logger, opts...)
	require.NoError(t, err)
}

func (h *harness) value(t *testing.T, selector string) string {
	t.Helper()
	v, err := h.driver.Value(context.Background(), "", selector)
	require.NoError(t, err)
	return v
}

func fp(t *testing.T, step string) string {
	t.Helper()
	f, err := fingerprint.Compute(specID, testID, step)
	require.NoError(t, err)
	return f
}

var loginAnswers = map[string]string{
	`enter "ann" into the username field`: "```js\nfill(\"#username\", \"ann\")\n```",
	`click the sign in button`:             "`click(\"#submit\")`",
}

const loginDirective = `
	// log in
	enter "ann" into the username field

	click the sign in button
`

func TestThink_CachesAfterConfirmation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, loginAnswers)

	subj := h.thinker.Document().Think(ctx, directive.Text(loginDirective))
	require.NoError(t, subj.Err())
	assert.Equal(t, 2, h.client.Calls())
	assert.Equal(t, "ann", h.value(t, "#username"))
	assert.Len(t, h.driver.Submissions(), 1)

	out := subj.Last()
	require.Len(t, out.Steps, 2)
	for _, s := range out.Steps {
		assert.Equal(t, StateConfirmed, s.State)
		assert.False(t, s.FromCache)
	}
	assert.Equal(t, 200, out.TokensUsed)
	assert.Equal(t, schemas.ClientOpenAI, out.Backend.Client)
	_, err := uuid.Parse(out.InvocationID)
	assert.NoError(t, err)

	// Both actions were confirmed, so both are durable.
	entry, ok := h.cache.Lookup(fp(t, `enter "ann" into the username field`))
	require.True(t, ok)
	assert.Equal(t, `fill("#username", "ann")`, entry.Action)
	assert.Equal(t, specID, entry.SpecIdentifier)
	assert.Equal(t, 0, h.cache.PendingLen())

	// A new process over the same cache file makes no backend call.
	h.reopen(t)
	subj = h.thinker.Document().Think(ctx, directive.Text(loginDirective))
	require.NoError(t, subj.Err())
	assert.Equal(t, 2, h.client.Calls(), "second run is answered from the cache")
	assert.Equal(t, "ann", h.value(t, "#username"))

	out = subj.Last()
	assert.True(t, out.Steps[0].FromCache)
	assert.Equal(t, StateConfirmed, out.Steps[0].State)
	assert.Equal(t, 200, out.TokensSaved)
	assert.Zero(t, out.TokensUsed)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.StepOutcomes.WithLabelValues(observability.OutcomeConfirmed, "cache")))
}

func TestThink_ContextReflectsPreviousStep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, loginAnswers)

	subj := h.thinker.Document().Think(ctx, directive.Lines(
		`enter "ann" into the username field`,
		`click the sign in button`,
	))
	require.NoError(t, subj.Err())

	received := h.client.Received()
	require.Len(t, received, 2)
	assert.NotContains(t, received[0].Context, `value="ann"`)
	assert.Contains(t, received[1].Context, `value="ann"`)
}

func TestThink_ScopedContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]string{"open help": `click(".help")`})

	subj := h.thinker.Get("#sidebar").Think(ctx, directive.Text("open help"))
	require.NoError(t, subj.Err())
	assert.Equal(t, "#sidebar", subj.Scope())

	received := h.client.Received()
	require.Len(t, received, 1)
	assert.Equal(t, `<a class="help" href="#help">Help</a>`, received[0].Context)
	assert.NotContains(t, received[0].Context, "<form")
}

func TestThink_NestedSelectorListStaysInScope(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]string{"open help": `click(".help")`})

	// .help exists only outside the form.
	subj := h.thinker.Get("#login").Get("#missing, .help").Think(ctx, directive.Text("open help"))
	require.ErrorIs(t, subj.Err(), browser.ErrNoElement)
	assert.Zero(t, h.client.Calls())

	subj = h.thinker.Get("body").Get("#missing, #sidebar").Think(ctx, directive.Text("open help"))
	require.NoError(t, subj.Err())
	assert.Equal(t, "body #missing, body #sidebar", subj.Scope())
	assert.Equal(t, `<a class="help" href="#help">Help</a>`, h.client.Received()[0].Context)
}

func TestThink_FailedActionIsNeverCached(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]string{
		"click the big red button": `click("#big-red")`,
		"click the sign in button": `click("#submit")`,
	})

	subj := h.thinker.Document().Think(ctx, directive.Text("click the big red button\nclick the sign in button"))
	err := subj.Err()
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 0, stepErr.Index)
	assert.Equal(t, `click("#big-red")`, stepErr.Action)
	assert.Equal(t, StateExecuting, stepErr.State)
	assert.ErrorIs(t, err, browser.ErrNoElement)
	assert.Contains(t, err.Error(), `failed to execute generated action: click("#big-red")`)

	// Fail fast: the second step never ran.
	assert.Equal(t, 1, h.client.Calls())
	require.Len(t, subj.Last().Steps, 1)
	assert.Equal(t, StateFailed, subj.Last().Steps[0].State)
	assert.Empty(t, h.driver.Submissions())

	_, cached := h.cache.Lookup(fp(t, "click the big red button"))
	assert.False(t, cached)
	assert.Equal(t, 0, h.cache.PendingLen(), "the pending entry is discarded")
	assert.Equal(t, 0, h.cache.Len())

	// The subject stays failed.
	subj.Think(ctx, directive.Text("click the sign in button"))
	assert.Equal(t, 1, h.client.Calls())
}

func TestThink_UnparseableActionFails(t *testing.T) {
	h := newHarness(t, map[string]string{"do something": `cy.get("#x").click()`})

	subj := h.thinker.Document().Think(context.Background(), directive.Text("do something"))
	require.Error(t, subj.Err())
	assert.Contains(t, subj.Err().Error(), `cy.get("#x").click()`)
	assert.Equal(t, 0, h.cache.Len())
}

func TestThink_BackendFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.client.Err = errors.New("401 unauthorized")

	subj := h.thinker.Document().Think(context.Background(), directive.Text("click the sign in button"))
	require.Error(t, subj.Err())
	var stepErr *StepError
	require.ErrorAs(t, subj.Err(), &stepErr)
	assert.Equal(t, StatePending, stepErr.State)
	assert.Empty(t, stepErr.Action)
}

func TestThink_Placeholders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string]string{
		"type the password": `fill("#password", "{{ password }}")`,
	})

	subj := h.thinker.Document().Think(ctx, directive.Text("type the password"),
		WithPlaceholders(map[string]string{"password": "s3cret"}))
	require.NoError(t, subj.Err())
	assert.Equal(t, "s3cret", h.value(t, "#password"))

	// The template, not the secret, is cached and recorded.
	entry, ok := h.cache.Lookup(fp(t, "type the password"))
	require.True(t, ok)
	assert.Equal(t, `fill("#password", "{{ password }}")`, entry.Action)
	assert.NotContains(t, subj.Last().GeneratedBlock(), "s3cret")
}

func TestThink_PlaceholderValuesAreNotSyntax(t *testing.T) {
	ctx := context.Background()
	values := []string{`O"Brien`, `a\nb`, "two\nlines"}

	for _, v := range values {
		h := newHarness(t, map[string]string{
			"type the name": `fill("#username", "{{name}}")`,
		})
		subj := h.thinker.Document().Think(ctx, directive.Text("type the name"),
			WithPlaceholders(map[string]string{"name": v}))
		require.NoError(t, subj.Err(), "value %q", v)
		assert.Equal(t, v, h.value(t, "#username"))
	}
}

func TestThink_EmptyDirectiveIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	subj := h.thinker.Document().Think(context.Background(), directive.Text("\n  // only a comment\n"))
	require.NoError(t, subj.Err())
	assert.Empty(t, subj.Last().Steps)
	assert.Zero(t, h.client.Calls())
}

func TestThink_CanceledStepIsNeverPromoted(t *testing.T) {
	h := newHarness(t, loginAnswers)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	subj := h.thinker.Document().Think(ctx, directive.Text(loginDirective))
	require.ErrorIs(t, subj.Err(), context.Canceled)
	assert.Equal(t, 0, h.cache.Len())
}

func TestThink_PromotionFailureDoesNotFailStep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, loginAnswers)

	promoter := new(mocks.MockPromoter)
	promoter.On("Promote", mock.Anything, mock.Anything).Return(false, errors.New("companion unreachable"))
	thinker, err := NewThinker(h.svc, promoter, browser.NewInterpreter(h.driver, zaptest.NewLogger(t), browser.WithRetryTimeout(0)), zaptest.NewLogger(t), WithTest(specID, testID))
	require.NoError(t, err)

	subj := thinker.Document().Think(ctx, directive.Text(`enter "ann" into the username field`))
	require.NoError(t, subj.Err())
	promoter.AssertNumberOfCalls(t, "Promote", 1)
}

type recorderFunc func(ctx context.Context, req schemas.SaveGeneratedThoughtRequest) error

func (f recorderFunc) SaveGeneratedThought(ctx context.Context, req schemas.SaveGeneratedThoughtRequest) error {
	return f(ctx, req)
}

func TestThink_RecorderReceivesGeneratedBlock(t *testing.T) {
	ctx := context.Background()
	var saved []schemas.SaveGeneratedThoughtRequest
	rec := recorderFunc(func(_ context.Context, req schemas.SaveGeneratedThoughtRequest) error {
		saved = append(saved, req)
		return nil
	})
	h := newHarness(t, loginAnswers, WithRecorder(rec))

	require.NoError(t, h.thinker.Document().Think(ctx, directive.Text(loginDirective)).Err())
	require.Len(t, saved, 1)
	assert.Equal(t, specID, saved[0].SpecIdentifier)
	assert.Equal(t, testID, saved[0].TestIdentifier)
	assert.Equal(t, loginDirective, saved[0].DirectiveText)
	assert.Equal(t, strings.Join([]string{
		`// enter "ann" into the username field`,
		`fill("#username", "ann")`,
		`// click the sign in button`,
		`click("#submit")`,
	}, "\n"), saved[0].GeneratedActionBlock)

	// List directives have no single literal to replace.
	require.NoError(t, h.thinker.Document().Think(ctx, directive.Lines(`click the sign in button`)).Err())
	assert.Len(t, saved, 1)
}

func TestSteps_RunsGeneratedBlock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	block := "// enter the user\nfill(\"#username\", \"{{user}}\")\n// submit\nclick(\"#submit\")"
	subj := h.thinker.Get("#login").Steps(ctx, block, WithPlaceholders(map[string]string{"user": "bob"}))
	require.NoError(t, subj.Err())
	assert.Equal(t, "bob", h.value(t, "#username"))
	assert.Len(t, h.driver.Submissions(), 1)
	assert.Len(t, subj.Last().Steps, 2)
	assert.Zero(t, h.client.Calls())

	bad := h.thinker.Document().Steps(ctx, `explode("#x")`)
	assert.Error(t, bad.Err())

	failing := h.thinker.Document().Steps(ctx, `click("#missing")`)
	var stepErr *StepError
	require.ErrorAs(t, failing.Err(), &stepErr)
	assert.Equal(t, `click("#missing")`, stepErr.Action)
}

func TestSteps_PlaceholderCannotInjectCommands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	injected := `x")` + "\n" + `click("#submit`
	subj := h.thinker.Document().Steps(ctx, `fill("#username", "{{user}}")`,
		WithPlaceholders(map[string]string{"user": injected}))
	require.NoError(t, subj.Err())
	assert.Equal(t, injected, h.value(t, "#username"))
	assert.Empty(t, h.driver.Submissions())
	require.Len(t, subj.Last().Steps, 1)
	assert.Equal(t, `fill("#username", "{{user}}")`, subj.Last().Steps[0].Action)
}

func TestNewThinker_RequiresDependencies(t *testing.T) {
	_, err := NewThinker(nil, nil, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StatePending.CanTransition(StateCacheHit))
	assert.True(t, StatePending.CanTransition(StateTranslating))
	assert.True(t, StateTranslated.CanTransition(StateExecuting))
	assert.True(t, StateExecuting.CanTransition(StateFailed))

	assert.False(t, StatePending.CanTransition(StateExecuting))
	assert.False(t, StateCacheHit.CanTransition(StateTranslated))
	assert.False(t, StateConfirmed.CanTransition(StateFailed))
	assert.False(t, StateFailed.CanTransition(StatePending))

	assert.True(t, StateConfirmed.Terminal())
	assert.Equal(t, "CACHE_HIT", StateCacheHit.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestHumanizeDuration(t *testing.T) {
	cases := map[time.Duration]string{
		300 * time.Millisecond:  "300ms",
		1200 * time.Millisecond: "1.2s",
		50 * time.Second:        "50s",
		70 * time.Second:        "1m10s",
		2 * time.Minute:         "2m",
	}
	for d, want := range cases {
		assert.Equal(t, want, humanizeDuration(d), d.String())
	}
}
