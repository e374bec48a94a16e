// internal/llmclient/openai.go
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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/config"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4.1"

// OpenAIClient translates steps with the OpenAI Responses API.
type OpenAIClient struct {
	apiKey         string
	endpoint       string
	model          string
	httpClient     *http.Client
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

var _ schemas.TranslationClient = (*OpenAIClient)(nil)

// -- Responses API Request/Response Structures --

type openAIResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIClient initializes the client. The API key and base URL are required.
func NewOpenAIClient(cfg config.TranslatorConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("%s environment variable is required", config.EnvOpenAIAPIKey)
	}
	base := strings.TrimRight(cfg.OpenAI.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%s environment variable is required", config.EnvOpenAIBaseURL)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		apiKey:   cfg.OpenAI.APIKey,
		endpoint: base + "/responses",
		model:    model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.Named("llm_client.openai"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			b.MaxInterval = 30 * time.Second
			return b
		},
	}, nil
}

// Identity reports the backend family and default model.
func (c *OpenAIClient) Identity() schemas.BackendIdentity {
	return schemas.BackendIdentity{Client: schemas.ClientOpenAI, Model: c.model}
}

// Translate sends the step to the Responses API, retrying transient failures.
func (c *OpenAIClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	model := in.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(c.buildRequestPayload(model, in))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var parsed openAIResponse
	startTime := time.Now()

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error during translation request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		parsed = openAIResponse{}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if parsed.Error != nil && parsed.Error.Message != "" {
			return backoff.Permanent(fmt.Errorf("openai API error: %s", parsed.Error.Message))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return nil, err
	}
	duration := time.Since(startTime)

	text := parsed.text()
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openai API returned no output text")
	}

	c.logger.Info("Translation complete (OpenAI)",
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", parsed.Usage.InputTokens),
		zap.Int("output_tokens", parsed.Usage.OutputTokens),
		zap.Int("total_tokens", parsed.Usage.TotalTokens),
	)

	return &schemas.TranslationResult{
		Action:     text,
		TokenUsage: parsed.Usage.TotalTokens,
		Backend:    schemas.BackendIdentity{Client: schemas.ClientOpenAI, Model: model},
		DurationMs: duration.Milliseconds(),
	}, nil
}

// buildRequestPayload merges backend options (temperature, top_p, max_output_tokens) into the
// top level of the request, where the Responses API expects them.
func (c *OpenAIClient) buildRequestPayload(model string, in schemas.TranslationInput) map[string]any {
	payload := make(map[string]any, len(in.Options)+3)
	for k, v := range in.Options {
		payload[k] = v
	}
	payload["model"] = model
	payload["instructions"] = ComposeInstructions(in.AgentInstructions)
	payload["input"] = ComposeInput(in.Context, in.DirectiveText)
	return payload
}

// text joins the output_text parts of all message items.
func (r *openAIResponse) text() string {
	if r.OutputText != "" {
		return r.OutputText
	}
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("OpenAI API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("openai API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}
