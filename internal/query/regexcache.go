package query

import (
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// defaultRegexCacheSize is the regex_cache_size default.
const defaultRegexCacheSize = 1000

// regexCache is the process-wide compiled-pattern cache shared across
// plans. Lookups take the read lock and bump a recency
// counter atomically, so the common hit path never contends with other
// readers; only an insert takes the write lock, evicting the
// least-recently-used entry when the cache is full. It tolerates being
// dropped and rebuilt — a cold cache is a performance cost only.
type regexCache struct {
	mu      sync.RWMutex
	max     int
	entries map[uint64]*regexEntry
	clock   atomic.Int64
}

type regexEntry struct {
	re       *regexp.Regexp
	lastUsed atomic.Int64
}

var sharedRegexCache = &regexCache{
	max:     defaultRegexCacheSize,
	entries: make(map[uint64]*regexEntry),
}

// SetRegexCacheSize resizes the shared cache (regex_cache_size in the
// host configuration). Shrinking evicts oldest entries immediately;
// n <= 0 restores the default.
func SetRegexCacheSize(n int) {
	if n <= 0 {
		n = defaultRegexCacheSize
	}
	c := sharedRegexCache
	c.mu.Lock()
	c.max = n
	for len(c.entries) > c.max {
		c.evictOldestLocked()
	}
	c.mu.Unlock()
}

// compileCached compiles source once per (source, case_sensitive) pair,
// serving repeats from the shared cache. Case-insensitive terms are
// compiled with the (?i) flag rather than rewritten.
func compileCached(source string, caseSensitive bool) (*regexp.Regexp, error) {
	key := regexKey(source, caseSensitive)
	c := sharedRegexCache

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		e.lastUsed.Store(c.clock.Add(1))
		return e.re, nil
	}

	pattern := source
	if !caseSensitive {
		pattern = "(?i)" + source
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		existing.lastUsed.Store(c.clock.Add(1))
		return existing.re, nil
	}
	for len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	e = &regexEntry{re: re}
	e.lastUsed.Store(c.clock.Add(1))
	c.entries[key] = e
	c.mu.Unlock()
	return re, nil
}

// evictOldestLocked removes the entry with the smallest recency stamp.
// Linear scan; the cache is bounded at ~1000 entries and eviction only
// runs on an insert that found the cache full.
func (c *regexCache) evictOldestLocked() {
	var oldestKey uint64
	oldest := int64(-1)
	for k, e := range c.entries {
		if u := e.lastUsed.Load(); oldest < 0 || u < oldest {
			oldest = u
			oldestKey = k
		}
	}
	if oldest >= 0 {
		delete(c.entries, oldestKey)
	}
}

func regexKey(source string, caseSensitive bool) uint64 {
	return xxhash.Sum64String(source + "\x00" + strconv.FormatBool(caseSensitive))
}
