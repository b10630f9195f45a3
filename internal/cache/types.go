// Package cache implements the Intelligent Cache (spec §4.3): a
// multi-namespace LRU/TTL store with tag invalidation and usage-pattern
// tracking driving predictive prefetch.
package cache

import "time"

// Namespace separates flow / validation / generic entries (spec §3).
type Namespace string

const (
	NamespaceFlow       Namespace = "flow"
	NamespaceValidation Namespace = "validation"
	NamespaceGeneric    Namespace = "generic"
)

// Entry holds everything spec §3's CacheEntry names.
type Entry struct {
	Key          string
	Namespace    Namespace
	Value        any
	CreatedAt    int64
	TTL          time.Duration
	AccessCount  int
	LastAccessed int64
	SizeBytes    int64
	Tags         map[string]struct{}
}

func (e *Entry) expiresAt() int64 {
	return e.CreatedAt + e.TTL.Milliseconds()
}

func (e *Entry) expired(now int64) bool {
	return now >= e.expiresAt()
}

func (e *Entry) hasAnyTag(tags []string) bool {
	for _, t := range tags {
		if _, ok := e.Tags[t]; ok {
			return true
		}
	}
	return false
}

// UsagePattern tracks per-key access history for predictive prefetch
// (spec §3).
type UsagePattern struct {
	Key               string
	Frequency         int
	LastAccess        int64
	History           []int64 // bounded to 10
	PredictedNextAccess int64
}

const usageHistoryCap = 10

// Stats is the cache's `stats` operation output.
type Stats struct {
	Entries    int
	SizeBytes  int64
	MaxEntries int
	MaxSize    int64
	Evictions  int64
	Expirations int64
}
