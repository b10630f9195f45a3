package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Topics published by the cache (spec §6).
const (
	TopicFlowCached         = "flow_cached"
	TopicValidationCached   = "validation_cached"
	TopicGenericCached      = "generic_cached"
	TopicCacheHit           = "cache_hit"
	TopicCacheExpired       = "cache_expired"
	TopicCacheInvalidated   = "cache_invalidated"
	TopicCacheEvicted       = "cache_evicted"
	TopicCleanupCompleted   = "cleanup_completed"
	TopicPredictivePrefetch = "predictive_prefetch"
)

// Cache is the control plane's intelligent, namespaced LRU/TTL store.
// All operations succeed; eviction is best-effort and never blocks
// callers (spec §4.3 error semantics).
type Cache struct {
	clock clock.Clock
	bus   *bus.Bus
	cfg   config.Cache
	log   *logging.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	usage   map[string]*UsagePattern
	size    int64

	evictions   int64
	expirations int64
}

// New creates a Cache.
func New(clk clock.Clock, b *bus.Bus, cfg config.Cache, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.New("cache", "info", "json")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 100 * 1024 * 1024
	}
	return &Cache{
		clock:   clk,
		bus:     b,
		cfg:     cfg,
		log:     log,
		entries: make(map[string]*Entry),
		usage:   make(map[string]*UsagePattern),
	}
}

func estimateSize(value any) int64 {
	data, err := json.Marshal(value)
	if err != nil {
		return 64 // best-effort fallback; never fails the caller
	}
	return int64(len(data))
}

// Put stores value under key in namespace, enforcing space/entry limits
// before insertion by evicting LRU entries (spec §4.3 "Space
// enforcement"). ttl<=0 uses the configured default; tags may be nil.
func (c *Cache) Put(ns Namespace, key string, value any, ttl time.Duration, tags []string) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	size := estimateSize(value)
	now := c.clock.NowMs()

	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	c.mu.Lock()
	fullKey := string(ns) + ":" + key
	if old, ok := c.entries[fullKey]; ok {
		c.size -= old.SizeBytes
		delete(c.entries, fullKey)
	}

	evicted := c.enforceSpaceLocked(size)

	entry := &Entry{
		Key:          key,
		Namespace:    ns,
		Value:        value,
		CreatedAt:    now,
		TTL:          ttl,
		AccessCount:  1,
		LastAccessed: now,
		SizeBytes:    size,
		Tags:         tagSet,
	}
	c.entries[fullKey] = entry
	c.size += size
	c.touchUsageLocked(fullKey, now)
	c.mu.Unlock()

	for _, e := range evicted {
		c.publish(TopicCacheEvicted, map[string]any{"key": e.Key, "namespace": string(e.Namespace)})
	}
	c.publishPutEvent(ns, key)
}

// enforceSpaceLocked evicts LRU entries until adding newSize would fit
// within both MaxSize and MaxEntries, returning what it evicted so the
// caller can publish events after releasing c.mu. Caller holds c.mu.
func (c *Cache) enforceSpaceLocked(newSize int64) []*Entry {
	var evicted []*Entry
	for (c.size+newSize > c.cfg.MaxSizeBytes || len(c.entries) >= c.cfg.MaxEntries) && len(c.entries) > 0 {
		var lruKey string
		var lruAt int64 = -1
		for k, e := range c.entries {
			if lruAt == -1 || e.LastAccessed < lruAt {
				lruAt = e.LastAccessed
				lruKey = k
			}
		}
		if lruKey == "" {
			break
		}
		e := c.entries[lruKey]
		c.size -= e.SizeBytes
		delete(c.entries, lruKey)
		c.evictions++
		evicted = append(evicted, e)
	}
	return evicted
}

// Get returns the value for key in namespace; expired entries are
// deleted and absent is returned (spec §4.3 "Expiry first").
func (c *Cache) Get(ns Namespace, key string) (any, bool) {
	fullKey := string(ns) + ":" + key
	now := c.clock.NowMs()

	c.mu.Lock()
	entry, ok := c.entries[fullKey]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if entry.expired(now) {
		c.size -= entry.SizeBytes
		delete(c.entries, fullKey)
		c.expirations++
		c.mu.Unlock()
		c.publish(TopicCacheExpired, map[string]any{"key": key, "namespace": string(ns)})
		return nil, false
	}
	entry.AccessCount++
	entry.LastAccessed = now
	c.touchUsageLocked(fullKey, now)
	val := entry.Value
	c.mu.Unlock()

	c.publish(TopicCacheHit, map[string]any{"key": key, "namespace": string(ns)})
	return val, true
}

// Invalidate deletes key from namespace if present.
func (c *Cache) Invalidate(ns Namespace, key string) {
	fullKey := string(ns) + ":" + key
	c.mu.Lock()
	if e, ok := c.entries[fullKey]; ok {
		c.size -= e.SizeBytes
		delete(c.entries, fullKey)
	}
	c.mu.Unlock()
	c.publish(TopicCacheInvalidated, map[string]any{"key": key, "namespace": string(ns)})
}

// InvalidateByTags deletes every entry whose tag set intersects tags.
func (c *Cache) InvalidateByTags(tags []string) int {
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if e.hasAnyTag(tags) {
			c.size -= e.SizeBytes
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.publish(TopicCacheInvalidated, map[string]any{"tags": tags, "removed": removed})
	}
	return removed
}

// ClearAll removes every entry.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.size = 0
	c.mu.Unlock()
}

// Stats reports the cache's current occupancy and lifetime counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:     len(c.entries),
		SizeBytes:   c.size,
		MaxEntries:  c.cfg.MaxEntries,
		MaxSize:     c.cfg.MaxSizeBytes,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *Cache) touchUsageLocked(fullKey string, now int64) {
	u, ok := c.usage[fullKey]
	if !ok {
		u = &UsagePattern{Key: fullKey}
		c.usage[fullKey] = u
	}
	u.Frequency++
	u.History = append(u.History, now)
	if len(u.History) > usageHistoryCap {
		overflow := len(u.History) - usageHistoryCap
		u.History = u.History[overflow:]
	}
	u.LastAccess = now
	u.PredictedNextAccess = now + meanInterval(u.History)
}

func meanInterval(history []int64) int64 {
	if len(history) < 2 {
		return 0
	}
	var total int64
	for i := 1; i < len(history); i++ {
		total += history[i] - history[i-1]
	}
	return total / int64(len(history)-1)
}

func (c *Cache) publishPutEvent(ns Namespace, key string) {
	switch ns {
	case NamespaceFlow:
		c.publish(TopicFlowCached, map[string]any{"key": key})
	case NamespaceValidation:
		c.publish(TopicValidationCached, map[string]any{"key": key})
	default:
		c.publish(TopicGenericCached, map[string]any{"key": key})
	}
}

func (c *Cache) publish(topic string, data any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(topic, data)
}

// Cleanup sweeps and deletes expired entries, emitting cache_expired per
// key (spec §4.3 "Periodic cleanup").
func (c *Cache) Cleanup() {
	now := c.clock.NowMs()
	c.mu.Lock()
	var expiredKeys []struct {
		key string
		ns  Namespace
	}
	for k, e := range c.entries {
		if e.expired(now) {
			c.size -= e.SizeBytes
			delete(c.entries, k)
			c.expirations++
			expiredKeys = append(expiredKeys, struct {
				key string
				ns  Namespace
			}{e.Key, e.Namespace})
		}
	}
	c.mu.Unlock()

	for _, ek := range expiredKeys {
		c.publish(TopicCacheExpired, map[string]any{"key": ek.key, "namespace": string(ek.ns)})
	}
	c.publish(TopicCleanupCompleted, map[string]any{"expired": len(expiredKeys), "at": now})
}

// PredictivePrefetch collects keys whose predicted next access falls
// within the configured horizon and emits predictive_prefetch with that
// set. The cache does not itself fetch (spec §4.3).
func (c *Cache) PredictivePrefetch() []string {
	now := c.clock.NowMs()
	horizon := c.cfg.PrefetchHorizon
	if horizon <= 0 {
		horizon = 5 * time.Minute
	}
	deadline := now + horizon.Milliseconds()

	c.mu.Lock()
	var keys []string
	for fullKey, u := range c.usage {
		if u.PredictedNextAccess > 0 && u.PredictedNextAccess <= deadline {
			keys = append(keys, fullKey)
		}
	}
	c.mu.Unlock()

	sort.Strings(keys)
	if len(keys) > 0 {
		c.publish(TopicPredictivePrefetch, map[string]any{"keys": keys, "at": now})
	}
	return keys
}

// RunCleanup starts the periodic cleanup ticker (default 5 min).
func (c *Cache) RunCleanup(ctx context.Context) {
	interval := c.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	clock.Run(ctx, c.clock, clock.Fixed(interval), c.Cleanup)
}

// RunPrefetch starts the periodic predictive-prefetch ticker (default 2
// min), a no-op when EnablePredictive is false.
func (c *Cache) RunPrefetch(ctx context.Context) {
	if !c.cfg.EnablePredictive {
		return
	}
	interval := c.cfg.PrefetchInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	clock.Run(ctx, c.clock, clock.Fixed(interval), func() { c.PredictivePrefetch() })
}
