// Package dedupe drops duplicate webhook deliveries. Messaging
// providers redeliver webhooks on slow acks, so every inbound is
// checked against a TTL cache keyed by the provider message id.
package dedupe

import (
	"sync"
	"time"
)

// Cache remembers recently seen keys for a bounded time.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]int64 // key -> unix millis
	ttl     time.Duration
	maxSize int
}

// New builds a cache. A non-positive ttl means entries never expire;
// a non-positive maxSize means the cache is flushed instead of pruned.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	if maxSize < 0 {
		maxSize = 0
	}
	return &Cache{
		seen:    make(map[string]int64),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Seen reports whether key was observed within the TTL, and records it
// either way. Empty keys are never duplicates.
func (c *Cache) Seen(key string) bool {
	return c.SeenAt(key, time.Now())
}

// SeenAt is Seen with an explicit clock, for tests.
func (c *Cache) SeenAt(key string, now time.Time) bool {
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ms := now.UnixMilli()
	if prev, ok := c.seen[key]; ok {
		if c.ttl <= 0 || ms-prev < c.ttl.Milliseconds() {
			c.seen[key] = ms
			return true
		}
	}

	c.seen[key] = ms
	c.prune(ms)
	return false
}

func (c *Cache) prune(nowMillis int64) {
	if c.ttl > 0 {
		cutoff := nowMillis - c.ttl.Milliseconds()
		for k, ts := range c.seen {
			if ts < cutoff {
				delete(c.seen, k)
			}
		}
	}

	if c.maxSize <= 0 {
		if len(c.seen) > 1 {
			c.seen = make(map[string]int64)
		}
		return
	}

	for len(c.seen) > c.maxSize {
		var oldestKey string
		oldest := int64(^uint64(0) >> 1)
		for k, ts := range c.seen {
			if ts < oldest {
				oldest = ts
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.seen, oldestKey)
	}
}

// Size returns the number of live entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Key builds the dedupe key for an inbound message.
func Key(channel, messageID string) string {
	if messageID == "" {
		return ""
	}
	if channel == "" {
		return messageID
	}
	return channel + ":" + messageID
}
