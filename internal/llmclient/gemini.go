// internal/llmclient/gemini.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/config"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient translates steps with the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ schemas.TranslationClient = (*GeminiClient)(nil)

// NewGeminiClient initializes the SDK client. The API key is required; the base URL is only
// set when GEMINI_BASE_URL points at a proxy.
func NewGeminiClient(ctx context.Context, cfg config.TranslatorConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("%s environment variable is required", config.EnvGeminiAPIKey)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.Gemini.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if base := strings.TrimSpace(cfg.Gemini.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Identity reports the backend family and default model.
func (c *GeminiClient) Identity() schemas.BackendIdentity {
	return schemas.BackendIdentity{Client: schemas.ClientGemini, Model: c.model}
}

// Translate sends one generateContent request.
func (c *GeminiClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	model := in.Model
	if model == "" {
		model = c.model
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ComposeInstructions(in.AgentInstructions), genai.RoleUser),
	}
	applyGeminiOptions(genCfg, in.Options)

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(ComposeInput(in.Context, in.DirectiveText)), genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	duration := time.Since(startTime)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := ""
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return nil, errors.New("gemini API returned no text (finish reason: " + reason + ")")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	c.logger.Info("Translation complete (Gemini)",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", tokens),
	)

	return &schemas.TranslationResult{
		Action:     text,
		TokenUsage: tokens,
		Backend:    schemas.BackendIdentity{Client: schemas.ClientGemini, Model: model},
		DurationMs: duration.Milliseconds(),
	}, nil
}

// applyGeminiOptions maps the generic backend options onto the SDK configuration.
func applyGeminiOptions(cfg *genai.GenerateContentConfig, opts map[string]any) {
	if v, ok := floatOption(opts, "temperature"); ok {
		cfg.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := floatOption(opts, "top_p"); ok {
		cfg.TopP = genai.Ptr(float32(v))
	}
	if v, ok := floatOption(opts, "max_output_tokens"); ok {
		cfg.MaxOutputTokens = int32(v)
	}
}

func floatOption(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
