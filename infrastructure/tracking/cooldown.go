// Package tracking delivers status changes to observers outside the
// status map, such as logs.
package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/helixml/branchscope/domain/status"
)

// Ensure Cooldown implements both status.Reporter and io.Closer.
var (
	_ status.Reporter = (*Cooldown)(nil)
	_ io.Closer       = (*Cooldown)(nil)
)

// Cooldown wraps a Reporter and limits how frequently updates are delivered
// for each key. Terminal statuses (done, error) are always delivered
// immediately. Non-terminal updates are delivered at most once per the
// configured interval; the latest pending status is flushed when the
// interval elapses or when a terminal status arrives.
type Cooldown struct {
	inner    status.Reporter
	interval time.Duration
	mu       sync.Mutex
	entries  map[string]*cooldownEntry
}

type cooldownEntry struct {
	lastFlush time.Time
	pending   *status.Status
	timer     *time.Timer
}

// NewCooldown creates a Cooldown wrapping the given reporter with the
// specified minimum interval between deliveries per key.
func NewCooldown(inner status.Reporter, interval time.Duration) *Cooldown {
	return &Cooldown{
		inner:    inner,
		interval: interval,
		entries:  make(map[string]*cooldownEntry),
	}
}

// OnChange receives a status update. Terminal statuses flush immediately.
// Non-terminal statuses are throttled to at most one delivery per interval.
func (c *Cooldown) OnChange(ctx context.Context, key string, s status.Status) error {
	c.mu.Lock()

	if s.IsTerminal() {
		if entry := c.entries[key]; entry != nil {
			if entry.timer != nil {
				entry.timer.Stop()
			}
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return c.inner.OnChange(ctx, key, s)
	}

	entry, exists := c.entries[key]
	if !exists {
		entry = &cooldownEntry{}
		c.entries[key] = entry
	}

	elapsed := time.Since(entry.lastFlush)
	if elapsed >= c.interval {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
		entry.pending = nil
		entry.lastFlush = time.Now()
		c.mu.Unlock()
		return c.inner.OnChange(ctx, key, s)
	}

	// Throttled: keep the latest, schedule one flush.
	pending := s
	entry.pending = &pending

	if entry.timer == nil {
		entry.timer = time.AfterFunc(c.interval-elapsed, func() {
			c.flushPending(key)
		})
	}

	c.mu.Unlock()
	return nil
}

// Close flushes all pending statuses and stops all timers.
func (c *Cooldown) Close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*cooldownEntry)
	c.mu.Unlock()

	for key, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.pending != nil {
			_ = c.inner.OnChange(context.Background(), key, *entry.pending)
		}
	}
	return nil
}

func (c *Cooldown) flushPending(key string) {
	c.mu.Lock()
	entry, exists := c.entries[key]
	if !exists || entry.pending == nil {
		if exists {
			entry.timer = nil
		}
		c.mu.Unlock()
		return
	}

	s := *entry.pending
	entry.pending = nil
	entry.lastFlush = time.Now()
	entry.timer = nil
	c.mu.Unlock()

	_ = c.inner.OnChange(context.Background(), key, s)
}
