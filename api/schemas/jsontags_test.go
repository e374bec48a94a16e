package schemas_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// TestStructJSONTags pins the wire names shared with the test runner and the cache file.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "CacheEntry",
			structRef: schemas.CacheEntry{},
			expectedTags: map[string]string{
				"Prompt":         "prompt",
				"Action":         "action",
				"TokenUsage":     "tokenUsage",
				"Client":         "client",
				"Model":          "model",
				"DurationMs":     "durationMs,omitempty",
				"SpecIdentifier": "specIdentifier",
				"TestIdentifier": "testIdentifier",
				"CreatedAt":      "createdAt",
			},
		},
		{
			name:      "TaskRequest",
			structRef: schemas.TaskRequest{},
			expectedTags: map[string]string{
				"DirectiveText":  "directiveText",
				"HTMLContext":    "htmlContext",
				"SpecIdentifier": "specIdentifier",
				"TestIdentifier": "testIdentifier",
			},
		},
		{
			name:      "TaskResponse",
			structRef: schemas.TaskResponse{},
			expectedTags: map[string]string{
				"Action":      "action",
				"TokenUsage":  "tokenUsage",
				"FromCache":   "fromCache",
				"Client":      "client",
				"Model":       "model",
				"DurationMs":  "durationMs,omitempty",
				"Fingerprint": "fingerprint",
			},
		},
		{
			name:      "SaveGeneratedThoughtRequest",
			structRef: schemas.SaveGeneratedThoughtRequest{},
			expectedTags: map[string]string{
				"SpecIdentifier":       "specIdentifier",
				"TestIdentifier":       "testIdentifier",
				"DirectiveText":        "directiveText",
				"GeneratedActionBlock": "generatedActionBlock",
			},
		},
		{
			name:      "ClearCachedThoughtsRequest",
			structRef: schemas.ClearCachedThoughtsRequest{},
			expectedTags: map[string]string{
				"SpecIdentifier": "specIdentifier",
				"TestIdentifier": "testIdentifier",
			},
		},
		{
			name:      "CompanionResponse",
			structRef: schemas.CompanionResponse{},
			expectedTags: map[string]string{
				"Success":  "success",
				"Promoted": "promoted,omitempty",
				"Count":    "count,omitempty",
				"Skipped":  "skipped,omitempty",
				"Error":    "error,omitempty",
			},
		},
		{
			name:         "SavePromptRequest",
			structRef:    schemas.SavePromptRequest{},
			expectedTags: map[string]string{"Fingerprint": "fingerprint"},
		},
		{
			name:         "AbandonPromptRequest",
			structRef:    schemas.AbandonPromptRequest{},
			expectedTags: map[string]string{"Fingerprint": "fingerprint"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tc.structRef)
			assert.Equal(t, len(tc.expectedTags), typ.NumField(), "every field needs an expected tag")
			for i := 0; i < typ.NumField(); i++ {
				field := typ.Field(i)
				expected, ok := tc.expectedTags[field.Name]
				if assert.True(t, ok, "unexpected field %s", field.Name) {
					assert.Equal(t, expected, field.Tag.Get("json"), "field %s", field.Name)
				}
			}
		})
	}
}
