// internal/llmclient/ratelimit.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// RateLimitedClient spaces out calls to a backend that enforces a request quota.
type RateLimitedClient struct {
	next    schemas.TranslationClient
	limiter *rate.Limiter
}

var _ schemas.TranslationClient = (*RateLimitedClient)(nil)

// NewRateLimitedClient allows requestsPerMinute calls per minute with a burst of one.
func NewRateLimitedClient(next schemas.TranslationClient, requestsPerMinute int) *RateLimitedClient {
	every := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

// Identity delegates to the wrapped backend.
func (c *RateLimitedClient) Identity() schemas.BackendIdentity {
	return c.next.Identity()
}

// Translate waits for a token, then delegates.
func (c *RateLimitedClient) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.next.Translate(ctx, in)
}
