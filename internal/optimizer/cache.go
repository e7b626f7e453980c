package optimizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// IndicatorCache memoizes indicator computations (ATR, ATR%, ...)
// keyed by a hash of the input series plus parameters, so repeated
// optimizer trials over the same candle window never recompute them.
// Eviction is FIFO: once full, the oldest 10% of entries are dropped,
// mirroring the insertion-order eviction of a plain map walked in
// insertion order.
type IndicatorCache struct {
	mu      sync.Mutex
	values  map[string]interface{}
	order   []string
	maxSize int
	hits    int
	misses  int
}

// NewIndicatorCache constructs a cache capped at maxSize entries.
// maxSize <= 0 defaults to 1000.
func NewIndicatorCache(maxSize int) *IndicatorCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &IndicatorCache{
		values:  make(map[string]interface{}),
		maxSize: maxSize,
	}
}

// Get returns the cached value for key, if any.
func (c *IndicatorCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Put stores value under key, evicting the oldest 10% of entries
// first if the cache is at capacity.
func (c *IndicatorCache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[key]; !exists && len(c.values) >= c.maxSize {
		removeCount := c.maxSize / 10
		if removeCount < 1 {
			removeCount = 1
		}
		if removeCount > len(c.order) {
			removeCount = len(c.order)
		}
		for _, k := range c.order[:removeCount] {
			delete(c.values, k)
		}
		c.order = c.order[removeCount:]
	}
	if _, exists := c.values[key]; !exists {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// GetOrCompute returns the cached value for key, computing and
// caching it via compute on a miss.
func (c *IndicatorCache) GetOrCompute(key string, compute func() interface{}) interface{} {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := compute()
	c.Put(key, v)
	return v
}

// Clear empties the cache and resets hit/miss counters.
func (c *IndicatorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = make(map[string]interface{})
	c.order = nil
	c.hits = 0
	c.misses = 0
}

// CacheStats summarizes a cache's size and effectiveness.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int
	Misses  int
	HitRate decimal.Decimal
}

// Stats returns the cache's current size and hit/miss counters.
func (c *IndicatorCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	var hitRate decimal.Decimal
	if total > 0 {
		hitRate = decimal.NewFromInt(int64(c.hits)).Div(decimal.NewFromInt(int64(total)))
	}
	return CacheStats{Size: len(c.values), MaxSize: c.maxSize, Hits: c.hits, Misses: c.misses, HitRate: hitRate}
}

// MakeCacheKey builds a deterministic key from an indicator name, a
// data hash, and its parameters, sorted by parameter name so
// insertion order never affects the key.
func MakeCacheKey(indicator, dataHash string, params map[string]interface{}) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		v, _ := json.Marshal(params[k])
		b.WriteByte('"')
		b.WriteString(k)
		b.WriteString(`":`)
		b.Write(v)
	}
	b.WriteByte('}')

	return indicator + ":" + dataHash + ":" + b.String()
}

// HashData returns a short hash identifying a decimal series, for use
// in cache keys.
func HashData(data []decimal.Decimal) string {
	parts := make([]string, len(data))
	for i, d := range data {
		parts[i] = d.String()
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])[:16]
}
