// Package translate answers translation tasks: cache lookup first, then a backend call whose
// normalized result is staged for confirmation.
package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/fingerprint"
	"github.com/xkilldash9x/cythink/internal/llmutil"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/sanitize"
	"github.com/xkilldash9x/cythink/internal/store"
)

// ErrEmptyAction is returned when a backend answer normalizes to nothing.
var ErrEmptyAction = errors.New("backend returned an empty action")

// Settings are the per-process translation parameters.
type Settings struct {
	Model             string
	Options           map[string]any
	AgentInstructions string
	MaxContextLength  int
}

// Service implements schemas.TaskTranslator on top of a backend client and the cache.
type Service struct {
	client   schemas.TranslationClient
	cache    *store.Cache
	settings Settings
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	// inflight joins concurrent misses for the same fingerprint into one backend call.
	inflight singleflight.Group
}

var _ schemas.TaskTranslator = (*Service)(nil)

// NewService creates a translation service.
func NewService(client schemas.TranslationClient, cache *store.Cache, settings Settings, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	if settings.MaxContextLength <= 0 {
		settings.MaxContextLength = sanitize.DefaultMaxLength
	}
	return &Service{
		client:   client,
		cache:    cache,
		settings: settings,
		logger:   logger.Named("translate"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Identity reports the backend answering cache misses.
func (s *Service) Identity() schemas.BackendIdentity {
	id := s.client.Identity()
	if s.settings.Model != "" {
		id.Model = s.settings.Model
	}
	return id
}

// Lookup answers a task from the durable cache only. The boolean reports a hit.
func (s *Service) Lookup(req schemas.TaskRequest) (*schemas.TaskResponse, bool, error) {
	fp, err := fingerprint.Compute(req.SpecIdentifier, req.TestIdentifier, req.DirectiveText)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fingerprint step: %w", err)
	}
	entry, ok := s.cache.Lookup(fp)
	if !ok {
		return &schemas.TaskResponse{Fingerprint: fp}, false, nil
	}
	return &schemas.TaskResponse{
		Action:      entry.Action,
		TokenUsage:  entry.TokenUsage,
		FromCache:   true,
		Client:      entry.Client,
		Model:       entry.Model,
		DurationMs:  entry.DurationMs,
		Fingerprint: fp,
	}, true, nil
}

// Translate answers a task from the cache, or calls the backend and stages the result as
// pending. A staged result is durable only after promotion.
func (s *Service) Translate(ctx context.Context, req schemas.TaskRequest) (*schemas.TaskResponse, error) {
	resp, hit, err := s.Lookup(req)
	if err != nil {
		return nil, err
	}
	if hit {
		s.metrics.CacheHits.Inc()
		s.metrics.TokensSaved.Add(float64(resp.TokenUsage))
		s.logger.Info("Using cached translation.",
			zap.String("fingerprint", resp.Fingerprint),
			zap.String("prompt", req.DirectiveText),
			zap.Int("tokens_saved", resp.TokenUsage),
		)
		return resp, nil
	}
	s.metrics.CacheMisses.Inc()
	fp := resp.Fingerprint

	v, err, shared := s.inflight.Do(fp, func() (interface{}, error) {
		return s.generate(ctx, req, fp)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Joined an in-flight translation.", zap.String("fingerprint", fp))
	}
	out := *v.(*schemas.TaskResponse)
	return &out, nil
}

// generate calls the backend for a miss and stages the normalized action. Callers joining
// the same fingerprint share the first caller's context.
func (s *Service) generate(ctx context.Context, req schemas.TaskRequest, fp string) (*schemas.TaskResponse, error) {
	sanitized := sanitize.Inspect(req.HTMLContext, s.settings.MaxContextLength)
	s.logger.Debug("Prepared context.",
		zap.String("fingerprint", fp),
		zap.Int("original_length", sanitized.OriginalLength),
		zap.Bool("truncated", sanitized.Truncated),
		zap.String("preview", llmutil.Preview(sanitized.HTML, 200)),
	)

	result, err := s.client.Translate(ctx, schemas.TranslationInput{
		Model:             s.settings.Model,
		DirectiveText:     req.DirectiveText,
		Context:           sanitized.HTML,
		AgentInstructions: s.settings.AgentInstructions,
		Options:           s.settings.Options,
	})
	if err != nil {
		s.metrics.TranslationFailures.WithLabelValues(string(s.client.Identity().Client)).Inc()
		return nil, fmt.Errorf("translation failed: %w", err)
	}

	act := llmutil.NormalizeAction(result.Action)
	if act == "" {
		s.metrics.TranslationFailures.WithLabelValues(string(result.Backend.Client)).Inc()
		return nil, ErrEmptyAction
	}
	s.metrics.TokensUsed.Add(float64(result.TokenUsage))

	s.cache.Stage(fp, schemas.CacheEntry{
		Prompt:         req.DirectiveText,
		Action:         act,
		TokenUsage:     result.TokenUsage,
		Client:         result.Backend.Client,
		Model:          result.Backend.Model,
		DurationMs:     result.DurationMs,
		SpecIdentifier: req.SpecIdentifier,
		TestIdentifier: req.TestIdentifier,
		CreatedAt:      s.now().UTC(),
	})
	s.logger.Info("Translated step.",
		zap.String("fingerprint", fp),
		zap.String("prompt", req.DirectiveText),
		zap.String("action", act),
		zap.Int("tokens", result.TokenUsage),
	)

	return &schemas.TaskResponse{
		Action:      act,
		TokenUsage:  result.TokenUsage,
		Client:      result.Backend.Client,
		Model:       result.Backend.Model,
		DurationMs:  result.DurationMs,
		Fingerprint: fp,
	}, nil
}

// Abandon discards a pending translation.
func (s *Service) Abandon(_ context.Context, fingerprint string) error {
	s.cache.Abandon(fingerprint)
	return nil
}

// Promote confirms a pending translation.
func (s *Service) Promote(ctx context.Context, fingerprint string) (bool, error) {
	return s.cache.Promote(ctx, fingerprint)
}
