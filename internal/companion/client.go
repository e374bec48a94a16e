// File: internal/companion/client.go
package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// Client calls a companion server. It lets a runner keep the cache in the companion process.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ schemas.Promoter        = (*Client)(nil)
	_ schemas.TaskTranslator  = (*Client)(nil)
	_ schemas.ThoughtRecorder = (*Client)(nil)
)

// NewClient creates a client for the server at baseURL. A nil httpClient selects a client
// with a two minute timeout, long enough for a backend call.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("companion_client"),
	}
}

// WaitReady polls the health route with exponential backoff until it answers or maxWait
// elapses.
func (c *Client) WaitReady(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = maxWait

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+RouteHealth, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("companion health check returned %d", resp.StatusCode)
		}
		return nil
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Promote confirms a pending translation.
func (c *Client) Promote(ctx context.Context, fingerprint string) (bool, error) {
	var resp schemas.CompanionResponse
	if err := c.post(ctx, RouteSavePrompt, schemas.SavePromptRequest{Fingerprint: fingerprint}, &resp); err != nil {
		return false, err
	}
	return resp.Promoted != nil && *resp.Promoted, nil
}

// Abandon discards a pending translation.
func (c *Client) Abandon(ctx context.Context, fingerprint string) error {
	var resp schemas.CompanionResponse
	return c.post(ctx, RouteAbandonPrompt, schemas.AbandonPromptRequest{Fingerprint: fingerprint}, &resp)
}

// Translate answers a translation task through the companion.
func (c *Client) Translate(ctx context.Context, req schemas.TaskRequest) (*schemas.TaskResponse, error) {
	var resp schemas.TaskResponse
	if err := c.post(ctx, RouteTranslate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveGeneratedThought asks the companion to rewrite a spec file.
func (c *Client) SaveGeneratedThought(ctx context.Context, req schemas.SaveGeneratedThoughtRequest) error {
	var resp schemas.CompanionResponse
	if err := c.post(ctx, RouteSaveGeneratedThought, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("companion could not save generated code: %s", resp.Error)
	}
	return nil
}

// ClearCachedThoughts deletes the entries of one test and returns how many were removed.
func (c *Client) ClearCachedThoughts(ctx context.Context, specID, testID string) (int, error) {
	var resp schemas.CompanionResponse
	req := schemas.ClearCachedThoughtsRequest{SpecIdentifier: specID, TestIdentifier: testID}
	if err := c.post(ctx, RouteClearCachedThoughts, req, &resp); err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, nil
	}
	return *resp.Count, nil
}

// post sends body as JSON and decodes a 200 answer into out. Other statuses become errors
// carrying the server's message.
func (c *Client) post(ctx context.Context, route string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("companion request %s failed: %w", route, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr schemas.CompanionResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("companion %s returned %d: %s", route, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("companion %s returned %d", route, resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}
