// internal/llmclient/router.go
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// FallbackRouter sends translations to a primary backend and retries them on a fallback
// backend when the primary fails. Results carry the identity of the backend that answered.
type FallbackRouter struct {
	logger   *zap.Logger
	primary  schemas.TranslationClient
	fallback schemas.TranslationClient
}

var _ schemas.TranslationClient = (*FallbackRouter)(nil)

// NewFallbackRouter creates a router over two backends.
func NewFallbackRouter(logger *zap.Logger, primary, fallback schemas.TranslationClient) (*FallbackRouter, error) {
	if primary == nil || fallback == nil {
		return nil, fmt.Errorf("both primary and fallback clients must be provided")
	}
	return &FallbackRouter{
		logger:   logger.Named("llm_router"),
		primary:  primary,
		fallback: fallback,
	}, nil
}

// Identity reports the primary backend.
func (r *FallbackRouter) Identity() schemas.BackendIdentity {
	return r.primary.Identity()
}

// Translate tries the primary backend first. Cancellation is never retried.
func (r *FallbackRouter) Translate(ctx context.Context, in schemas.TranslationInput) (*schemas.TranslationResult, error) {
	res, err := r.primary.Translate(ctx, in)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil, err
	}

	r.logger.Warn("Primary backend failed, routing to fallback.",
		zap.String("primary", string(r.primary.Identity().Client)),
		zap.String("fallback", string(r.fallback.Identity().Client)),
		zap.Error(err),
	)
	// The requested model names a primary model; the fallback uses its own.
	fbIn := in
	fbIn.Model = ""
	res, fbErr := r.fallback.Translate(ctx, fbIn)
	if fbErr != nil {
		return nil, fmt.Errorf("primary backend failed: %w; fallback failed: %v", err, fbErr)
	}
	return res, nil
}
