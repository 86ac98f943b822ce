package tenant

import (
	"log/slog"
	"sort"
	"time"
)

// cacheEntry is one cached tenant context plus its access bookkeeping. The
// entry owns its context's client until it leaves the cache; whoever removes
// an entry is responsible for releasing the client.
type cacheEntry struct {
	tctx         *Context
	lastAccessed time.Time
}

// expired reports whether the entry's sliding TTL has elapsed. Expiry is
// checked lazily on access; a stale entry is harmless until someone reads it.
func (e *cacheEntry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.lastAccessed) > ttl
}

// evictOverCap removes least-recently-accessed entries until the cache is at
// or under its capacity, returning the evicted entries so the caller can
// release their clients outside the lock. Caller holds the manager lock.
// Eviction is LRU by access time, not insertion time.
func evictOverCap(entries map[string]*cacheEntry, capacity int) []*cacheEntry {
	if capacity <= 0 || len(entries) <= capacity {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return entries[keys[i]].lastAccessed.Before(entries[keys[j]].lastAccessed)
	})

	var evicted []*cacheEntry
	for _, k := range keys {
		if len(entries) <= capacity {
			break
		}
		evicted = append(evicted, entries[k])
		delete(entries, k)
	}
	return evicted
}

// releaseClient closes a cached client in the background. Disconnect failures
// are logged and swallowed: eviction is usually incidental to an unrelated
// lookup and must never fail that lookup.
func releaseClient(c Client, cacheKey string, logger *slog.Logger) {
	if c == nil {
		return
	}
	go func() {
		if err := c.Close(); err != nil && logger != nil {
			logger.Warn("failed to close tenant database client",
				"cache_key", cacheKey,
				"error", err,
			)
		}
	}()
}
