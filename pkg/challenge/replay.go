package challenge

import (
	"context"
	"sync"
	"time"
)

// ReplayChecker remembers challenge identifiers until they expire.
// Seen returns true when id was already presented and is still live.
type ReplayChecker interface {
	Seen(ctx context.Context, id string, expiresAt time.Time) bool
}

type memoryReplayChecker struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ticker *time.Ticker
	done   chan struct{}
}

// NewMemoryReplayChecker creates an in-memory replay checker that
// purges expired entries every cleanupInterval.
func NewMemoryReplayChecker(cleanupInterval time.Duration) ReplayChecker {
	rc := &memoryReplayChecker{
		seen:   make(map[string]time.Time),
		ticker: time.NewTicker(cleanupInterval),
		done:   make(chan struct{}),
	}

	go rc.cleanupLoop()

	return rc
}

func (rc *memoryReplayChecker) Seen(_ context.Context, id string, expiresAt time.Time) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if exp, ok := rc.seen[id]; ok {
		if time.Now().Before(exp) {
			return true
		}
		delete(rc.seen, id)
	}

	rc.seen[id] = expiresAt
	return false
}

func (rc *memoryReplayChecker) cleanupLoop() {
	for {
		select {
		case <-rc.ticker.C:
			rc.cleanup()
		case <-rc.done:
			rc.ticker.Stop()
			return
		}
	}
}

func (rc *memoryReplayChecker) cleanup() {
	now := time.Now()
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for id, exp := range rc.seen {
		if now.After(exp) {
			delete(rc.seen, id)
		}
	}
}

// Stop terminates the background cleanup goroutine.
func (rc *memoryReplayChecker) Stop() {
	close(rc.done)
}
