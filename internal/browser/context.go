// internal/browser/context.go
package browser

import (
	"context"
)

// combineContext derives a context from tab, so it keeps the CDP connection values, that is
// also canceled when op is canceled. op carries the caller's deadline.
func combineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
