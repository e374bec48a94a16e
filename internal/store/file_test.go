package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cythink/api/schemas"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "thoughts.json"))
	entries, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "thoughts.json")
	fs := NewFileStore(path)
	assert.Equal(t, path, fs.Location())

	in := map[string]schemas.CacheEntry{
		"abc": entryFor("spec.cy.js", "suite > test", "press go"),
	}
	require.NoError(t, fs.Save(ctx, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasPrefix(text, "{\n  \"abc\": {\n    \"prompt\": \"press go\""), "two-space indentation expected, got:\n%s", text)
	assert.Contains(t, text, `"tokenUsage": 100`)
	assert.Contains(t, text, `"specIdentifier": "spec.cy.js"`)
	assert.Contains(t, text, `"createdAt": "2025-06-01T12:00:00Z"`)

	out, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// No temporary files are left behind.
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileStore_OmitsZeroDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thoughts.json")
	entry := entryFor("s", "t", "p")
	entry.DurationMs = 0
	require.NoError(t, NewFileStore(path).Save(context.Background(), map[string]schemas.CacheEntry{"k": entry}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "durationMs")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thoughts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorContains(t, err, "failed to parse cache file")
}
