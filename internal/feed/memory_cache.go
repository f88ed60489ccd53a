package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/moodmap/internal/domain"
)

// MemoryCache is an in-process SnapshotCache with per-entry expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]memoryEntry
}

type memoryEntry struct {
	snap      domain.CachedSnapshot
	expiresAt time.Time
}

var _ domain.SnapshotCache = (*MemoryCache)(nil)

func NewMemoryCache(clock clockwork.Clock) *MemoryCache {
	return &MemoryCache{clock: clock, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Load(_ context.Context, key, stampSuffix string) (domain.CachedSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[entryKey(key, stampSuffix)]
	if !ok || (!e.expiresAt.IsZero() && c.clock.Now().After(e.expiresAt)) {
		return domain.CachedSnapshot{}, false, nil
	}
	return domain.CachedSnapshot{
		Payload: append([]byte(nil), e.snap.Payload...),
		Stamp:   e.snap.Stamp,
	}, true, nil
}

// Save stores snap. A non-positive ttl keeps the entry until overwritten.
func (c *MemoryCache) Save(_ context.Context, key, stampSuffix string, snap domain.CachedSnapshot, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entryKey(key, stampSuffix)] = memoryEntry{
		snap:      domain.CachedSnapshot{Payload: append([]byte(nil), snap.Payload...), Stamp: snap.Stamp},
		expiresAt: expiresAt,
	}
	return nil
}

// StartEvictionTimer periodically evicts expired entries. Call the returned
// function to stop it.
func (c *MemoryCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired record cache entries", "count", evicted, "remaining", c.Len())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// EvictExpired drops expired entries and returns how many were removed.
func (c *MemoryCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func entryKey(key, stampSuffix string) string {
	return key + "|" + stampSuffix
}
