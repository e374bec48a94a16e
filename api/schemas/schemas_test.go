package schemas_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cythink/api/schemas"
)

func TestConstants(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "openai", string(schemas.ClientOpenAI))
	assert.Equal(t, "gemini", string(schemas.ClientGemini))
	assert.Equal(t, "ollama", string(schemas.ClientOllama))
}

func TestCacheEntry_Matches(t *testing.T) {
	t.Parallel()
	e := schemas.CacheEntry{SpecIdentifier: "a.cy.js", TestIdentifier: "logs in"}

	assert.True(t, e.Matches("a.cy.js", "logs in"))
	assert.False(t, e.Matches("a.cy.js", "logs out"))
	assert.False(t, e.Matches("b.cy.js", "logs in"))
	assert.False(t, e.Matches("a.cy.js", ""))
}

func TestCompanionResponse_OmitsUnsetFields(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(schemas.CompanionResponse{Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true}`, string(raw))

	promoted, count := false, 0
	raw, err = json.Marshal(schemas.CompanionResponse{Success: true, Promoted: &promoted, Count: &count})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success": true, "promoted": false, "count": 0}`, string(raw))
}

func TestCacheEntry_DecodesRunnerDocument(t *testing.T) {
	t.Parallel()
	doc := `{
	  "prompt": "click login",
	  "action": "click(\"#login\")",
	  "tokenUsage": 57,
	  "client": "openai",
	  "model": "gpt-4o",
	  "specIdentifier": "cypress/e2e/login.cy.js",
	  "testIdentifier": "login > logs in",
	  "createdAt": "2026-03-01T10:00:00Z"
	}`

	var e schemas.CacheEntry
	require.NoError(t, json.Unmarshal([]byte(doc), &e))
	assert.Equal(t, schemas.ClientOpenAI, e.Client)
	assert.Equal(t, 57, e.TokenUsage)
	assert.Zero(t, e.DurationMs)
	assert.True(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Equal(e.CreatedAt))
}
