// internal/store/persister.go
package store

import (
	"context"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// Persister is the durable storage port of the cache. Save always receives the complete
// cache; implementations replace what they stored before.
type Persister interface {
	Load(ctx context.Context) (map[string]schemas.CacheEntry, error)
	Save(ctx context.Context, entries map[string]schemas.CacheEntry) error
	// Location describes where the data lives, for log messages.
	Location() string
}
