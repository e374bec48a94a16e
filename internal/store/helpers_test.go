package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// memoryStore is an in-memory Persister that records every save.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string]schemas.CacheEntry
	saves   int
	loadErr error
	saveErr error
}

func (m *memoryStore) Location() string { return "memory" }

func (m *memoryStore) Load(context.Context) (map[string]schemas.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]schemas.CacheEntry, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) Save(_ context.Context, entries map[string]schemas.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = entries
	return nil
}

var errDiskFull = errors.New("disk full")

func entryFor(spec, test, prompt string) schemas.CacheEntry {
	return schemas.CacheEntry{
		Prompt:         prompt,
		Action:         `click("#` + prompt + `")`,
		TokenUsage:     100,
		Client:         schemas.ClientOpenAI,
		Model:          "gpt-4.1",
		DurationMs:     1500,
		SpecIdentifier: spec,
		TestIdentifier: test,
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}
