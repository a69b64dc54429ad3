// Package cache implements a per-upstream, TTL-aware DNS response
// cache: bounded, LRU-evicted, keyed by (name, qtype, qclass).
package cache

import (
	"time"

	"github.com/bluele/gcache"
	"github.com/miekg/dns"
)

// Key identifies a cached response.
type Key struct {
	Name   string
	Qtype  uint16
	Qclass uint16
}

// Entry is a cached answer: the wire message as received from the
// upstream, the TTL it was stored with (post floor/ceiling clamp), and
// the instant it was inserted — used to compute the elapsed-fraction TTL
// decrement on a hit.
type Entry struct {
	Msg        *dns.Msg
	TTL        uint32
	InsertedAt time.Time
}

// Cache is a single bounded LRU+TTL cache, bound to one upstream
// endpoint. Capacity is bounded per endpoint, not globally.
type Cache struct {
	gc gcache.Cache
}

// New builds a Cache with the given maximum entry count.
func New(size int) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{gc: gcache.New(size).LRU().Build()}
}

// Get returns the cached entry for key along with its remaining TTL in
// seconds, or ok=false if there is no entry or it has expired. An expired
// entry is discarded at this access.
func (c *Cache) Get(key Key) (entry *Entry, remainingTTL uint32, ok bool) {
	v, err := c.gc.Get(key)
	if err != nil {
		return nil, 0, false
	}
	e := v.(*Entry)

	elapsed := time.Since(e.InsertedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	elapsedSeconds := uint32(elapsed.Seconds())
	if elapsedSeconds >= e.TTL {
		c.gc.Remove(key)
		return nil, 0, false
	}

	return e, e.TTL - elapsedSeconds, true
}

// Set stores msg under key with the given (already floor/ceiling-clamped)
// TTL in seconds.
func (c *Cache) Set(key Key, msg *dns.Msg, ttl uint32) {
	entry := &Entry{Msg: msg, TTL: ttl, InsertedAt: time.Now()}
	_ = c.gc.SetWithExpire(key, entry, time.Duration(ttl)*time.Second)
}

// Len reports the number of live entries, for tests and diagnostics.
func (c *Cache) Len() int {
	return c.gc.Len(true)
}
