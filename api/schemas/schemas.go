package schemas

import "time"

// BackendClient names the family of translation backend that produced an action.
type BackendClient string

const (
	ClientOpenAI BackendClient = "openai"
	ClientGemini BackendClient = "gemini"
	ClientOllama BackendClient = "ollama"
)

// BackendIdentity records which backend and model generated a translation.
type BackendIdentity struct {
	Client BackendClient `json:"client"`
	Model  string        `json:"model"`
}

// -- Translation Schemas --

// TranslationInput is everything a backend needs to turn one step into an action.
type TranslationInput struct {
	Model             string         `json:"model"`
	DirectiveText     string         `json:"directiveText"`
	Context           string         `json:"context"`
	AgentInstructions string         `json:"agentInstructions,omitempty"`
	Options           map[string]any `json:"options,omitempty"`
}

// TranslationResult is the raw output of a backend call. Action is not yet normalized.
type TranslationResult struct {
	Action     string          `json:"action"`
	TokenUsage int             `json:"tokenUsage"`
	Backend    BackendIdentity `json:"backend"`
	DurationMs int64           `json:"durationMs,omitempty"`
}

// -- Cache Schemas --

// CacheEntry is a translation together with the provenance needed for bulk deletion.
type CacheEntry struct {
	Prompt         string        `json:"prompt"`
	Action         string        `json:"action"`
	TokenUsage     int           `json:"tokenUsage"`
	Client         BackendClient `json:"client"`
	Model          string        `json:"model"`
	DurationMs     int64         `json:"durationMs,omitempty"`
	SpecIdentifier string        `json:"specIdentifier"`
	TestIdentifier string        `json:"testIdentifier"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Matches reports whether the entry belongs to the given spec and test.
func (e CacheEntry) Matches(specID, testID string) bool {
	return e.SpecIdentifier == specID && e.TestIdentifier == testID
}

// -- Translation Task Schemas --

// TaskRequest asks for the action matching one step of a directive.
type TaskRequest struct {
	DirectiveText  string `json:"directiveText"`
	HTMLContext    string `json:"htmlContext"`
	SpecIdentifier string `json:"specIdentifier"`
	TestIdentifier string `json:"testIdentifier"`
}

// TaskResponse is the answer to a TaskRequest. Fingerprint is set on every response;
// a runner needs it to confirm a freshly generated action.
type TaskResponse struct {
	Action      string        `json:"action"`
	TokenUsage  int           `json:"tokenUsage"`
	FromCache   bool          `json:"fromCache"`
	Client      BackendClient `json:"client"`
	Model       string        `json:"model"`
	DurationMs  int64         `json:"durationMs,omitempty"`
	Fingerprint string        `json:"fingerprint"`
}
