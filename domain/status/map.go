package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Reporter receives status changes as they are stored.
type Reporter interface {
	OnChange(ctx context.Context, key string, status Status) error
}

// Map is the process-wide view of every reference's status, keyed by
// unique name. A zero Map is not usable; create one with NewMap.
//
// Within a processing cycle a terminal status is never replaced by a
// non-terminal one. Restart opens a new cycle.
type Map struct {
	mu        sync.RWMutex
	entries   map[string]Status
	reporters []Reporter
	logger    *slog.Logger
}

// NewMap creates an empty Map.
func NewMap(logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	return &Map{
		entries: make(map[string]Status),
		logger:  logger,
	}
}

// Subscribe registers a reporter for every subsequent change.
func (m *Map) Subscribe(reporter Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, reporter)
}

// Get returns the status for key.
func (m *Map) Get(key string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.entries[key]
	return s, ok
}

// Set stores a status. A non-terminal status does not replace a terminal
// one; the call returns false in that case.
func (m *Map) Set(ctx context.Context, key string, s Status) bool {
	m.mu.Lock()
	current, ok := m.entries[key]
	if ok && current.IsTerminal() && !s.IsTerminal() {
		m.mu.Unlock()
		m.logger.Debug("ignoring late status update",
			slog.String("key", key),
			slog.String("current", current.Kind().String()),
			slog.String("update", s.Kind().String()),
		)
		return false
	}
	m.entries[key] = s
	m.mu.Unlock()

	m.notify(ctx, key, s)
	return true
}

// Restart moves key to Ready when no cycle is running, that is when the key
// is unknown or holds a terminal status. It returns true if a new cycle was
// opened.
func (m *Map) Restart(ctx context.Context, key string) bool {
	m.mu.Lock()
	current, ok := m.entries[key]
	if ok && !current.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	m.entries[key] = Ready()
	m.mu.Unlock()

	m.notify(ctx, key, Ready())
	return true
}

// Delete removes key.
func (m *Map) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Keys returns every key in sorted order.
func (m *Map) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Map) notify(ctx context.Context, key string, s Status) {
	m.mu.RLock()
	reporters := make([]Reporter, len(m.reporters))
	copy(reporters, m.reporters)
	m.mu.RUnlock()

	for _, r := range reporters {
		if err := r.OnChange(ctx, key, s); err != nil {
			m.logger.Error("failed to notify reporter",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
