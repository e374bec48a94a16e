// internal/store/ledger.go
package store

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// DefaultPendingLimit bounds the number of translations waiting for confirmation.
const DefaultPendingLimit = 1024

// Ledger holds translations that have been generated but not yet proven to execute. It is
// bounded; when full, the least recently staged entry is dropped. Entries are never persisted.
type Ledger struct {
	entries *lru.Cache[string, schemas.CacheEntry]
}

// NewLedger creates a ledger holding at most size entries.
func NewLedger(size int) (*Ledger, error) {
	if size <= 0 {
		size = DefaultPendingLimit
	}
	entries, err := lru.New[string, schemas.CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending ledger: %w", err)
	}
	return &Ledger{entries: entries}, nil
}

// Stage records a pending translation, replacing any earlier one for the fingerprint.
func (l *Ledger) Stage(fingerprint string, entry schemas.CacheEntry) {
	l.entries.Add(fingerprint, entry)
}

// Get returns a pending entry without removing it.
func (l *Ledger) Get(fingerprint string) (schemas.CacheEntry, bool) {
	return l.entries.Peek(fingerprint)
}

// Take removes and returns a pending entry.
func (l *Ledger) Take(fingerprint string) (schemas.CacheEntry, bool) {
	entry, ok := l.entries.Peek(fingerprint)
	if ok {
		l.entries.Remove(fingerprint)
	}
	return entry, ok
}

// Discard removes a pending entry and reports whether it existed.
func (l *Ledger) Discard(fingerprint string) bool {
	return l.entries.Remove(fingerprint)
}

// DiscardMatching removes every pending entry of a spec and test.
func (l *Ledger) DiscardMatching(specID, testID string) int {
	removed := 0
	for _, fp := range l.entries.Keys() {
		if entry, ok := l.entries.Peek(fp); ok && entry.Matches(specID, testID) {
			if l.entries.Remove(fp) {
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of pending entries.
func (l *Ledger) Len() int {
	return l.entries.Len()
}
