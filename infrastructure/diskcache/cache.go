// Package diskcache keeps materialized working trees on disk under a byte
// budget.
package diskcache

import (
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/helixml/branchscope/internal/metrics"
)

// Entry is a cached working tree.
type Entry struct {
	Dir  string
	Size uint64
}

// InsertResult reports whether Insert kept the entry.
type InsertResult int

// InsertResult values.
const (
	Accepted InsertResult = iota
	Rejected
)

// String implements fmt.Stringer.
func (r InsertResult) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "rejected"
}

type item struct {
	key   string
	entry Entry
}

// Cache maps reference keys to directories. Entries are ordered by size,
// largest first, and the smallest are evicted to make room. The resident
// total never exceeds the capacity.
type Cache struct {
	mu       sync.Mutex
	capacity uint64
	size     uint64
	items    []item
	metrics  *metrics.Metrics
	logger   *slog.Logger
	remove   func(string) error
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics publishes residency gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache holding at most capacity bytes.
func New(capacity uint64, opts ...Option) *Cache {
	c := &Cache{
		capacity: capacity,
		logger:   slog.Default(),
		remove:   os.RemoveAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capacity returns the byte budget.
func (c *Cache) Capacity() uint64 { return c.capacity }

// Size returns the resident total.
func (c *Cache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the cached keys, largest entry first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, len(c.items))
	for i, it := range c.items {
		keys[i] = it.key
	}
	return keys
}

// Get returns the entry for key without removing it.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.index(key); i >= 0 {
		return c.items[i].entry, true
	}
	return Entry{}, false
}

// Take removes the entry for key and hands its directory to the caller.
func (c *Cache) Take(key string) (Entry, bool) {
	c.mu.Lock()
	i := c.index(key)
	if i < 0 {
		c.mu.Unlock()
		return Entry{}, false
	}
	e := c.items[i].entry
	c.deleteAt(i)
	c.mu.Unlock()

	c.publish()
	return e, true
}

// Insert stores entry under key, evicting the smallest entries until it
// fits. An entry larger than the capacity is rejected without evicting
// anything. A rejected entry's directory is left to the caller. An existing
// entry for key is replaced and its directory removed.
func (c *Cache) Insert(key string, entry Entry) InsertResult {
	var doomed []string

	c.mu.Lock()
	if entry.Size > c.capacity {
		c.mu.Unlock()
		c.logger.Debug("rejecting cache entry larger than capacity",
			slog.String("key", key),
			slog.String("size", humanize.Bytes(entry.Size)),
			slog.String("capacity", humanize.Bytes(c.capacity)),
		)
		c.metrics.CacheRejection()
		return Rejected
	}

	if i := c.index(key); i >= 0 {
		if old := c.items[i].entry.Dir; old != entry.Dir {
			doomed = append(doomed, old)
		}
		c.deleteAt(i)
	}

	for c.size+entry.Size > c.capacity && len(c.items) > 0 {
		last := c.items[len(c.items)-1]
		c.deleteAt(len(c.items) - 1)
		doomed = append(doomed, last.entry.Dir)
		c.metrics.CacheEviction()
		c.logger.Debug("evicting cache entry",
			slog.String("key", last.key),
			slog.String("size", humanize.Bytes(last.entry.Size)),
		)
	}

	c.items = append(c.items, item{key: key, entry: entry})
	c.size += entry.Size
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].entry.Size > c.items[j].entry.Size
	})
	c.mu.Unlock()

	for _, dir := range doomed {
		if err := c.remove(dir); err != nil {
			c.logger.Warn("failed to remove evicted directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}
	c.publish()
	return Accepted
}

// Purge drops every entry and removes the directories.
func (c *Cache) Purge() {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.size = 0
	c.mu.Unlock()

	for _, it := range items {
		_ = c.remove(it.entry.Dir)
	}
	c.publish()
}

func (c *Cache) index(key string) int {
	for i, it := range c.items {
		if it.key == key {
			return i
		}
	}
	return -1
}

// deleteAt requires c.mu.
func (c *Cache) deleteAt(i int) {
	c.size -= c.items[i].entry.Size
	c.items = append(c.items[:i], c.items[i+1:]...)
}

func (c *Cache) publish() {
	c.mu.Lock()
	size, n := c.size, len(c.items)
	c.mu.Unlock()
	c.metrics.SetCacheUsage(size, n)
}
