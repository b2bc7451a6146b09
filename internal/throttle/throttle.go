// Package throttle decides whether a repeated event for the same identity fires now
// or is suppressed as a duplicate.
package throttle

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Class separates independent kinds of side effect for the same identity.
type Class int

const (
	Announce Class = iota
	Capture
)

func (c Class) String() string {
	switch c {
	case Announce:
		return "announce"
	case Capture:
		return "capture"
	default:
		return "unknown"
	}
}

const (
	DefaultAnnounceCooldown = 10 * time.Second
	DefaultCaptureCooldown  = 60 * time.Second
	// DefaultMaxEntries caps how many (key, class) pairs are remembered.
	DefaultMaxEntries = 1024
)

type entryKey struct {
	key   string
	class Class
}

// Registry remembers when each (key, class) pair last fired. It is bounded: once
// full, the least recently used pair is forgotten, which can only re-admit it early.
type Registry struct {
	mu      sync.Mutex
	entries *lru.Cache[entryKey, time.Time]
}

// NewRegistry creates a registry holding at most maxEntries pairs (DefaultMaxEntries if <= 0).
func NewRegistry(maxEntries int) *Registry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// lru.New only fails on a non-positive size.
	entries, _ := lru.New[entryKey, time.Time](maxEntries)
	return &Registry{entries: entries}
}

// Admit reports whether an event for (key, class) may fire at now. It admits when the
// pair has never fired or fired more than cooldown ago, recording now as the new
// last-fired time. A suppressed call leaves the recorded time untouched.
func (r *Registry) Admit(key string, class Class, now time.Time, cooldown time.Duration) bool {
	k := entryKey{key: key, class: class}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Get also bumps recency so an identity that keeps showing up is not evicted.
	if last, ok := r.entries.Get(k); ok && now.Sub(last) <= cooldown {
		return false
	}
	r.entries.Add(k, now)
	return true
}

// LastFired returns when (key, class) was last admitted.
func (r *Registry) LastFired(key string, class Class) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Peek(entryKey{key: key, class: class})
}

// Len returns the number of remembered pairs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}
