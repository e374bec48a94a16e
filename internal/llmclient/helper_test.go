package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/config"
)

// MockTranslationClient is a mock implementation of the TranslationClient interface for testing.
type MockTranslationClient struct {
	mock.Mock
}

// Translate mocks the Translate method.
func (m *MockTranslationClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*schemas.TranslationResult)
	return res, args.Error(1)
}

// Identity mocks the Identity method.
func (m *MockTranslationClient) Identity() schemas.BackendIdentity {
	args := m.Called()
	return args.Get(0).(schemas.BackendIdentity)
}

// setupTestLogger is a helper to create a zap logger for testing with an observer.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// getValidTranslatorConfig returns a hosted OpenAI configuration for testing purposes.
func getValidTranslatorConfig() config.TranslatorConfig {
	return config.TranslatorConfig{
		Client:   config.ClientHosted,
		Provider: config.ProviderOpenAI,
		Timeout:  5 * time.Second,
		OpenAI: config.HostedConfig{
			APIKey:  "sk-test",
			BaseURL: "https://api.openai.com/v1",
		},
		Gemini: config.HostedConfig{APIKey: "g-test"},
		Local:  config.LocalConfig{BaseURL: "http://localhost:11434/api"},
	}
}

func testInput() schemas.TranslationInput {
	return schemas.TranslationInput{
		DirectiveText:     `enter "ann" into the username field`,
		Context:           `<input id="username">`,
		AgentInstructions: "prefer ids",
	}
}
