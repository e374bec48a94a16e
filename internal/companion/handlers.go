// File: internal/companion/handlers.go
package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/fingerprint"
	"github.com/xkilldash9x/cythink/internal/rewrite"
)

// maxBodyBytes bounds request bodies. Translation requests carry page markup.
const maxBodyBytes = 16 << 20

// Route paths.
const (
	RouteSavePrompt           = "/save-prompt"
	RouteAbandonPrompt        = "/abandon-prompt"
	RouteSaveGeneratedThought = "/save-generated-thought"
	RouteClearCachedThoughts  = "/clear-cached-thoughts"
	RouteTranslate            = "/translate"
	RouteHealth               = "/healthz"
	RouteMetrics              = "/metrics"
)

// CacheService is the cache surface the companion mutates.
type CacheService interface {
	Promote(ctx context.Context, fingerprint string) (bool, error)
	Abandon(fingerprint string) bool
	Purge(ctx context.Context, specID, testID string) (int, error)
}

// SpecRewriter replaces directives in spec files.
type SpecRewriter interface {
	Rewrite(req schemas.SaveGeneratedThoughtRequest) (rewrite.Result, error)
}

// Handlers manages the HTTP request handling for the companion server.
type Handlers struct {
	log        *zap.Logger
	cache      CacheService
	translator schemas.TaskTranslator
	rewriter   SpecRewriter
}

// NewHandlers creates a new Handlers instance. translator may be nil, in which case the
// translate route answers 503.
func NewHandlers(logger *zap.Logger, cache CacheService, translator schemas.TaskTranslator, rewriter SpecRewriter) *Handlers {
	return &Handlers{
		log:        logger.Named("companion_handlers"),
		cache:      cache,
		translator: translator,
		rewriter:   rewriter,
	}
}

// RegisterRoutes sets up the mutating routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post(RouteSavePrompt, h.HandleSavePrompt)
	r.Post(RouteAbandonPrompt, h.HandleAbandonPrompt)
	r.Post(RouteSaveGeneratedThought, h.HandleSaveGeneratedThought)
	r.Post(RouteClearCachedThoughts, h.HandleClearCachedThoughts)
	r.Post(RouteTranslate, h.HandleTranslate)
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleSavePrompt promotes the pending translation of a step whose action executed.
func (h *Handlers) HandleSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req schemas.SavePromptRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Fingerprint == "" {
		h.respondWithError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}

	promoted, err := h.cache.Promote(r.Context(), req.Fingerprint)
	if err != nil {
		h.log.Error("Failed to persist promoted translation.", zap.String("fingerprint", req.Fingerprint), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save cache: %v", err))
		return
	}
	if !promoted {
		h.log.Warn("No pending translation for fingerprint.", zap.String("fingerprint", req.Fingerprint))
	}
	h.respond(w, http.StatusOK, schemas.CompanionResponse{Success: true, Promoted: &promoted})
}

// HandleAbandonPrompt discards the pending translation of a failed step.
func (h *Handlers) HandleAbandonPrompt(w http.ResponseWriter, r *http.Request) {
	var req schemas.AbandonPromptRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Fingerprint == "" {
		h.respondWithError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}
	h.cache.Abandon(req.Fingerprint)
	h.respond(w, http.StatusOK, schemas.CompanionResponse{Success: true})
}

// HandleSaveGeneratedThought rewrites the directive in its spec file. Rewrite failures are
// reported in the body; the caller treats them as best-effort.
func (h *Handlers) HandleSaveGeneratedThought(w http.ResponseWriter, r *http.Request) {
	var req schemas.SaveGeneratedThoughtRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.log.Info("Saving generated code.", zap.String("spec", req.SpecIdentifier), zap.String("test", req.TestIdentifier))

	res, err := h.rewriter.Rewrite(req)
	switch {
	case errors.Is(err, rewrite.ErrInvalidRequest):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Warn("Failed to update spec file with generated code.", zap.String("spec", req.SpecIdentifier), zap.Error(err))
		h.respond(w, http.StatusOK, schemas.CompanionResponse{Success: false, Error: err.Error()})
	default:
		h.respond(w, http.StatusOK, schemas.CompanionResponse{Success: true, Skipped: res.Skipped})
	}
}

// HandleClearCachedThoughts deletes the durable and pending entries of one test.
func (h *Handlers) HandleClearCachedThoughts(w http.ResponseWriter, r *http.Request) {
	var req schemas.ClearCachedThoughtsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SpecIdentifier == "" {
		h.respondWithError(w, http.StatusBadRequest, "specIdentifier is required")
		return
	}

	count, err := h.cache.Purge(r.Context(), req.SpecIdentifier, req.TestIdentifier)
	if err != nil {
		h.log.Error("Failed to clear cached thoughts.", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save cache: %v", err))
		return
	}
	h.log.Info("Cleared cached thoughts.",
		zap.String("spec", req.SpecIdentifier),
		zap.String("test", req.TestIdentifier),
		zap.Int("count", count),
	)
	h.respond(w, http.StatusOK, schemas.CompanionResponse{Success: true, Count: &count})
}

// HandleTranslate answers a translation task for out-of-process runners.
func (h *Handlers) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	if h.translator == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "no translation backend is configured")
		return
	}
	var req schemas.TaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DirectiveText == "" {
		h.respondWithError(w, http.StatusBadRequest, "directiveText is required")
		return
	}

	resp, err := h.translator.Translate(r.Context(), req)
	switch {
	case errors.Is(err, fingerprint.ErrUnhashable):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Warn("Translation failed.", zap.String("prompt", req.DirectiveText), zap.Error(err))
		h.respondWithError(w, http.StatusBadGateway, err.Error())
	default:
		h.respond(w, http.StatusOK, resp)
	}
}

// -- Helpers --

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, schemas.CompanionResponse{Success: false, Error: message})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
