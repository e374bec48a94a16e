package schemas

// -- Companion Endpoint Schemas --

// SavePromptRequest confirms that the action generated for a fingerprint executed.
type SavePromptRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// SaveGeneratedThoughtRequest asks the companion to rewrite a directive in a spec file with
// the actions generated for it.
type SaveGeneratedThoughtRequest struct {
	SpecIdentifier       string `json:"specIdentifier"`
	TestIdentifier       string `json:"testIdentifier"`
	DirectiveText        string `json:"directiveText"`
	GeneratedActionBlock string `json:"generatedActionBlock"`
}

// ClearCachedThoughtsRequest selects the cache entries of one test for deletion.
type ClearCachedThoughtsRequest struct {
	SpecIdentifier string `json:"specIdentifier"`
	TestIdentifier string `json:"testIdentifier"`
}

// CompanionResponse is the body of every companion reply. Fields that do not apply to a
// route are omitted.
type CompanionResponse struct {
	Success  bool   `json:"success"`
	Promoted *bool  `json:"promoted,omitempty"`
	Count    *int   `json:"count,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AbandonPromptRequest discards the pending translation of a failed step.
type AbandonPromptRequest struct {
	Fingerprint string `json:"fingerprint"`
}
