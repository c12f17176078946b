package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tiryaq/voice/internal/types"
)

// Backend is a persistent store for caller contexts.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	// Load returns ok=false when the caller has never been stored.
	Load(ctx context.Context, tenant, user string) (c Context, ok bool, err error)
	SaveSummary(ctx context.Context, tenant, user, summary string) error
	SaveHistory(ctx context.Context, tenant, user string, history []types.Turn) error
	LogSession(ctx context.Context, sessionID string, data map[string]any) error
}

// Manager reads through the backend when there is one and falls back to the
// cache whenever the backend is missing or failing. Reads never fail; writes
// are best effort.
type Manager struct {
	cache   *Cache
	backend Backend
	log     *slog.Logger
	now     func() time.Time
}

// NewManager creates a Manager. backend may be nil.
func NewManager(cache *Cache, backend Backend) *Manager {
	if cache == nil {
		cache = NewCache()
	}
	return &Manager{
		cache:   cache,
		backend: backend,
		log:     slog.Default().With("component", "memory"),
		now:     time.Now,
	}
}

// GetContext returns the caller's context, or a fresh default one. A caller
// the backend does not know may still be cached from a write it missed.
func (m *Manager) GetContext(ctx context.Context, tenant, user string) Context {
	if m.backend != nil {
		c, ok, err := m.backend.Load(ctx, tenant, user)
		switch {
		case err != nil:
			metricBackendErrors.WithLabelValues("load").Inc()
			m.log.Error("context load failed, using cache", "backend", m.backend.Name(), "tenant", tenant, "user", user, "err", err)
		case ok:
			m.cache.Put(tenant, user, c)
			return c
		}
	}
	if c, ok := m.cache.Get(tenant, user); ok {
		return c
	}
	return DefaultContext(m.now())
}

// SaveSummary stores the long-term memory line for a caller.
func (m *Manager) SaveSummary(ctx context.Context, tenant, user, summary string) {
	m.cache.Update(tenant, user, DefaultContext(m.now()), func(c *Context) {
		c.LongTermMemory = summary
	})
	if m.backend == nil {
		return
	}
	if err := m.backend.SaveSummary(ctx, tenant, user, summary); err != nil {
		metricBackendErrors.WithLabelValues("save_summary").Inc()
		m.log.Error("save summary failed", "backend", m.backend.Name(), "tenant", tenant, "user", user, "err", err)
	}
}

// SaveHistory stores the bounded conversation history for a caller.
func (m *Manager) SaveHistory(ctx context.Context, tenant, user string, history []types.Turn) {
	m.cache.Update(tenant, user, DefaultContext(m.now()), func(c *Context) {
		c.History = append([]types.Turn(nil), history...)
	})
	if m.backend == nil {
		return
	}
	if err := m.backend.SaveHistory(ctx, tenant, user, history); err != nil {
		metricBackendErrors.WithLabelValues("save_history").Inc()
		m.log.Error("save history failed", "backend", m.backend.Name(), "tenant", tenant, "user", user, "err", err)
	}
}

// LogSession records session analytics. Without a backend it is only logged.
func (m *Manager) LogSession(ctx context.Context, sessionID string, data map[string]any) {
	if m.backend == nil {
		m.log.Debug("session log (memory only)", "session", sessionID)
		return
	}
	if err := m.backend.LogSession(ctx, sessionID, data); err != nil {
		metricBackendErrors.WithLabelValues("log_session").Inc()
		m.log.Error("session log failed", "backend", m.backend.Name(), "session", sessionID, "err", err)
	}
}

// Status is reported by readiness checks.
type Status struct {
	StorageType      string `json:"storage_type"`
	BackendAvailable bool   `json:"backend_available"`
	CachedUsers      int    `json:"cached_users"`
}

func (m *Manager) Status(ctx context.Context) Status {
	st := Status{StorageType: "in_memory", CachedUsers: m.cache.Len()}
	if m.backend == nil {
		return st
	}
	st.StorageType = m.backend.Name()
	st.BackendAvailable = m.backend.Ping(ctx) == nil
	return st
}

// Summarize condenses a history into the line kept as long-term memory: what
// the caller asked most recently, newest last.
func Summarize(history []types.Turn, maxRunes int) string {
	var asked []string
	for _, t := range history {
		if t.Role == types.RoleUser && strings.TrimSpace(t.Content) != "" {
			asked = append(asked, strings.TrimSpace(t.Content))
		}
	}
	if len(asked) == 0 {
		return ""
	}
	s := "asked about: " + strings.Join(asked, " | ")
	if r := []rune(s); maxRunes > 0 && len(r) > maxRunes {
		s = string(r[len(r)-maxRunes:])
	}
	return s
}
