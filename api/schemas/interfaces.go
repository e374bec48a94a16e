package schemas

import "context"

// -- Translation Client Interface --

// TranslationClient turns a natural-language step plus page markup into the raw text of one
// automation statement. Implementations exist for hosted APIs and locally hosted models; the
// caller is responsible for normalizing the returned text.
type TranslationClient interface {
	// Translate sends the composed instructions, context, and directive to the backend.
	Translate(ctx context.Context, in TranslationInput) (*TranslationResult, error)
	// Identity reports the backend family and the model used when none is requested.
	Identity() BackendIdentity
}

// -- Promotion Interface --

// Promoter moves a pending translation into the durable cache once its action has been
// proven to execute. It is satisfied by the in-process cache and by the companion client.
type Promoter interface {
	// Promote returns false without error when no pending entry exists for the fingerprint.
	Promote(ctx context.Context, fingerprint string) (bool, error)
}

// -- Translation Task Interface --

// TaskTranslator answers translation tasks cache-first. It is satisfied by the in-process
// translation service and by the companion client.
type TaskTranslator interface {
	Translate(ctx context.Context, req TaskRequest) (*TaskResponse, error)
	// Abandon discards the pending translation of a step whose action failed.
	Abandon(ctx context.Context, fingerprint string) error
}

// -- Source Rewrite Interface --

// ThoughtRecorder writes a generated block back into the spec file it came from. It is
// satisfied by the source rewriter and by the companion client.
type ThoughtRecorder interface {
	SaveGeneratedThought(ctx context.Context, req SaveGeneratedThoughtRequest) error
}
