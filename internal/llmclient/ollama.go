// internal/llmclient/ollama.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/config"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "codellama"

// OllamaClient translates steps with a locally hosted Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ schemas.TranslationClient = (*OllamaClient)(nil)

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// NewOllamaClient points the client at cfg.Local.BaseURL, which must end in /api.
func NewOllamaClient(cfg config.TranslatorConfig, logger *zap.Logger) (*OllamaClient, error) {
	baseURL := strings.TrimRight(cfg.Local.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}

	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("llm_client.ollama"),
	}, nil
}

// Identity reports the backend family and default model.
func (c *OllamaClient) Identity() schemas.BackendIdentity {
	return schemas.BackendIdentity{Client: schemas.ClientOllama, Model: c.model}
}

// Translate sends one non-streaming generate request.
func (c *OllamaClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	model := in.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   model,
		Prompt:  ComposeInput(in.Context, in.DirectiveText),
		System:  ComposeInstructions(in.AgentInstructions),
		Stream:  false,
		Options: in.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var response ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", response.Error)
	}
	if strings.TrimSpace(response.Response) == "" {
		return nil, errors.New("ollama returned an empty response")
	}
	duration := time.Since(startTime)

	tokens := response.PromptEvalCount + response.EvalCount
	c.logger.Info("Translation complete (Ollama)",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", response.PromptEvalCount),
		zap.Int("output_tokens", response.EvalCount),
		zap.Int("total_tokens", tokens),
	)

	return &schemas.TranslationResult{
		Action:     response.Response,
		TokenUsage: tokens,
		Backend:    schemas.BackendIdentity{Client: schemas.ClientOllama, Model: model},
		DurationMs: duration.Milliseconds(),
	}, nil
}
