// internal/store/cache.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/observability"
)

// Record pairs a fingerprint with its durable entry.
type Record struct {
	Fingerprint string
	Entry       schemas.CacheEntry
}

// Cache is the durable fingerprint to action map plus the ledger of translations waiting for
// confirmation. All mutations are serialized and persisted before they return.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]schemas.CacheEntry
	pending   *Ledger
	persister Persister
	logger    *zap.Logger
	metrics   *observability.Metrics
}

var _ schemas.Promoter = (*Cache)(nil)

// NewCache loads the durable cache through persister. A load failure is returned: starting
// empty would overwrite the stored entries on the next promotion.
func NewCache(ctx context.Context, persister Persister, pendingLimit int, logger *zap.Logger, metrics *observability.Metrics) (*Cache, error) {
	pending, err := NewLedger(pendingLimit)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	log := logger.Named("cache")

	entries, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache from %s: %w", persister.Location(), err)
	}
	if entries == nil {
		entries = make(map[string]schemas.CacheEntry)
	}
	log.Info("Loaded cache.", zap.String("location", persister.Location()), zap.Int("entries", len(entries)))

	return &Cache{
		entries:   entries,
		pending:   pending,
		persister: persister,
		logger:    log,
		metrics:   metrics,
	}, nil
}

// Lookup returns the durable entry for a fingerprint.
func (c *Cache) Lookup(fingerprint string) (schemas.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	return entry, ok
}

// Stage records a fresh translation as pending. It becomes durable only through Promote.
func (c *Cache) Stage(fingerprint string, entry schemas.CacheEntry) {
	c.pending.Stage(fingerprint, entry)
	c.logger.Debug("Staged pending translation.", zap.String("fingerprint", fingerprint))
}

// Pending returns a staged entry without promoting it.
func (c *Cache) Pending(fingerprint string) (schemas.CacheEntry, bool) {
	return c.pending.Get(fingerprint)
}

// Promote moves a pending translation into the durable cache and persists it. It returns
// false without error when nothing is pending for the fingerprint. When persisting fails the
// entry stays promoted in memory and the error is returned.
func (c *Cache) Promote(ctx context.Context, fingerprint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.pending.Take(fingerprint)
	if !ok {
		c.logger.Warn("No pending translation to promote.", zap.String("fingerprint", fingerprint))
		return false, nil
	}

	c.entries[fingerprint] = entry
	c.metrics.Promotions.Inc()
	c.logger.Info("Promoted translation.",
		zap.String("fingerprint", fingerprint),
		zap.String("prompt", entry.Prompt),
		zap.String("action", entry.Action),
	)

	if err := c.persistLocked(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Abandon discards a pending translation whose action failed.
func (c *Cache) Abandon(fingerprint string) bool {
	removed := c.pending.Discard(fingerprint)
	if removed {
		c.logger.Debug("Discarded pending translation.", zap.String("fingerprint", fingerprint))
	}
	return removed
}

// Purge deletes every durable and pending entry of a spec and test and returns the number of
// durable entries removed. The store is written only when something was removed.
func (c *Cache) Purge(ctx context.Context, specID, testID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, entry := range c.entries {
		if entry.Matches(specID, testID) {
			delete(c.entries, fp)
			c.logger.Debug("Deleted cached translation.", zap.String("fingerprint", fp))
			removed++
		}
	}
	pendingRemoved := c.pending.DiscardMatching(specID, testID)

	c.logger.Info("Purged cached translations.",
		zap.String("spec", specID),
		zap.String("test", testID),
		zap.Int("deleted", removed),
		zap.Int("pending_deleted", pendingRemoved),
	)
	if removed == 0 {
		return 0, nil
	}
	c.metrics.PurgedEntries.Add(float64(removed))
	if err := c.persistLocked(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

// Records returns a snapshot of the durable entries ordered by spec, test, and creation time.
func (c *Cache) Records() []Record {
	c.mu.Lock()
	records := make([]Record, 0, len(c.entries))
	for fp, entry := range c.entries {
		records = append(records, Record{Fingerprint: fp, Entry: entry})
	}
	c.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Entry, records[j].Entry
		if a.SpecIdentifier != b.SpecIdentifier {
			return a.SpecIdentifier < b.SpecIdentifier
		}
		if a.TestIdentifier != b.TestIdentifier {
			return a.TestIdentifier < b.TestIdentifier
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return records[i].Fingerprint < records[j].Fingerprint
	})
	return records
}

// Len returns the number of durable entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PendingLen returns the number of staged entries.
func (c *Cache) PendingLen() int {
	return c.pending.Len()
}

func (c *Cache) persistLocked(ctx context.Context) error {
	snapshot := make(map[string]schemas.CacheEntry, len(c.entries))
	for fp, entry := range c.entries {
		snapshot[fp] = entry
	}
	if err := c.persister.Save(ctx, snapshot); err != nil {
		c.logger.Error("Failed to save cache.", zap.String("location", c.persister.Location()), zap.Error(err))
		return fmt.Errorf("failed to persist cache: %w", err)
	}
	return nil
}
