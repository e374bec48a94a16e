// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// -- Translation Client Mock --

// MockTranslationClient mocks the schemas.TranslationClient interface.
type MockTranslationClient struct {
	mock.Mock
}

// Translate provides a mock function for backend calls. A canceled context fails before the
// expectation is consulted.
func (m *MockTranslationClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*schemas.TranslationResult)
	return res, args.Error(1)
}

// Identity provides a mock function for the backend identity.
func (m *MockTranslationClient) Identity() schemas.BackendIdentity {
	args := m.Called()
	return args.Get(0).(schemas.BackendIdentity)
}

// NewMockTranslationClient returns a client mock that reports identity id.
func NewMockTranslationClient(id schemas.BackendIdentity) *MockTranslationClient {
	m := new(MockTranslationClient)
	m.On("Identity").Return(id).Maybe()
	return m
}

// -- Promoter Mock --

// MockPromoter mocks the schemas.Promoter interface.
type MockPromoter struct {
	mock.Mock
}

// Promote provides a mock function for promotion.
func (m *MockPromoter) Promote(ctx context.Context, fingerprint string) (bool, error) {
	args := m.Called(ctx, fingerprint)
	return args.Bool(0), args.Error(1)
}

// -- Scripted Client --

// ScriptedClient is a TranslationClient that answers from a fixed step to action table and
// records every input it receives.
type ScriptedClient struct {
	mu       sync.Mutex
	ID       schemas.BackendIdentity
	Answers  map[string]string
	Tokens   int
	Err      error
	received []schemas.TranslationInput
}

// Translate returns the scripted answer for in.DirectiveText, or an empty action.
func (c *ScriptedClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, in)
	if c.Err != nil {
		return nil, c.Err
	}
	return &schemas.TranslationResult{
		Action:     c.Answers[in.DirectiveText],
		TokenUsage: c.Tokens,
		Backend:    c.ID,
		DurationMs: 5,
	}, nil
}

// Identity returns c.ID.
func (c *ScriptedClient) Identity() schemas.BackendIdentity {
	return c.ID
}

// Calls returns the number of backend calls made.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

// Received returns a copy of the inputs received, oldest first.
func (c *ScriptedClient) Received() []schemas.TranslationInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schemas.TranslationInput(nil), c.received...)
}
