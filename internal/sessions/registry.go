// Package sessions owns every connected caller's state and its lifetime.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tiryaq/voice/internal/events"
	"tiryaq/voice/internal/floor"
	"tiryaq/voice/internal/memory"
	"tiryaq/voice/internal/orchestrator"
	"tiryaq/voice/internal/outbound"
	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/vad"
)

var ErrSessionExists = errors.New("session already exists")

// Resolver loads tenant profiles.
type Resolver interface {
	Resolve(id string) (tenant.Profile, error)
}

// Config holds the per-session knobs.
type Config struct {
	VAD                vad.Config
	Pipeline           orchestrator.Config
	CancelOnDisconnect bool
	SummaryRunes       int
	PersistTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		VAD:            vad.DefaultConfig(),
		Pipeline:       orchestrator.DefaultConfig(),
		SummaryRunes:   500,
		PersistTimeout: 5 * time.Second,
	}
}

// Deps are the process-wide collaborators every session shares.
type Deps struct {
	Resolver  Resolver
	Providers orchestrator.Providers
	Pool      *orchestrator.Pool
	Memory    *memory.Manager
	Events    *events.Log
}

// Registry maps session ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	base    context.Context
	deps    Deps
	cfg     Config
	persist sync.WaitGroup
	log     *slog.Logger
	now     func() time.Time
}

// NewRegistry creates a registry. base outlives every connection; detached
// turns run under it.
func NewRegistry(base context.Context, deps Deps, cfg Config) *Registry {
	if deps.Memory == nil {
		deps.Memory = memory.NewManager(memory.NewCache(), nil)
	}
	if deps.Events == nil {
		deps.Events = events.NewLog(0, 0)
	}
	if deps.Pool == nil {
		deps.Pool = orchestrator.NewPool(32)
	}
	return &Registry{
		sessions: make(map[string]*Session),
		base:     base,
		deps:     deps,
		cfg:      cfg,
		log:      slog.Default().With("component", "session"),
		now:      time.Now,
	}
}

// Open resolves the tenant, checks provider credentials and registers a new
// session. Any error here is a configuration error for this connection.
func (r *Registry) Open(ctx context.Context, tenantID, userID string) (*Session, error) {
	profile, err := r.deps.Resolver.Resolve(tenantID)
	if err != nil {
		metricOpened.WithLabelValues("tenant_error").Inc()
		return nil, err
	}

	created := r.now()
	id := fmt.Sprintf("%s-%s-%d", tenantID, userID, created.UnixNano())
	log := r.log.With("session", id, "tenant", tenantID, "user", userID)

	pipe, err := orchestrator.NewPipeline(profile, r.deps.Providers, r.deps.Pool, r.cfg.Pipeline, log.With("component", "orch"))
	if err != nil {
		metricOpened.WithLabelValues("credentials_error").Inc()
		return nil, err
	}

	mc := r.deps.Memory.GetContext(ctx, tenantID, userID)
	conv := orchestrator.NewConversation(orchestrator.Identity{
		TenantID:       tenantID,
		UserID:         userID,
		FirstName:      mc.FirstName,
		LongTermMemory: mc.LongTermMemory,
	}, mc.History, mc.CreatedAt)

	q := outbound.New(log)
	s := &Session{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: created,
		seg:       vad.New(r.cfg.VAD),
		floor:     floor.New(q),
		queue:     q,
		conv:      conv,
		pipeline:  pipe,
		events:    r.deps.Events,
		log:       log,
		now:       time.Now,
	}
	if r.cfg.CancelOnDisconnect {
		s.turnCtx, s.cancelTurns = context.WithCancel(r.base)
	} else {
		s.turnCtx, s.cancelTurns = r.base, func() {}
	}

	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		s.cancelTurns()
		metricOpened.WithLabelValues("duplicate").Inc()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	metricOpened.WithLabelValues("ok").Inc()
	metricActive.Inc()
	r.deps.Events.Append(id, "session_opened", map[string]any{"tenant": tenantID, "user": userID, "persona": profile.Persona.Name})
	log.Info("session opened", "persona", profile.Persona.Name, "history", conv.Len())
	return s, nil
}

func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Close removes the session and stops its drain. In-flight turns either
// detach or are cancelled, depending on configuration; the conversation is
// persisted once they are done. Closing twice is a no-op.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok || !s.markClosed() {
		return
	}

	s.queue.Close()
	s.cancelTurns()
	metricActive.Dec()
	r.deps.Events.Append(id, "session_closed", map[string]any{"turns": s.turnCount.Load()})
	s.log.Info("session closed", "turns", s.turnCount.Load(), "dropped", s.dropped.Load())

	r.persist.Add(1)
	go func() {
		defer r.persist.Done()
		s.Wait()
		r.save(s)
	}()
}

func (r *Registry) save(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()

	history := s.conv.History()
	r.deps.Memory.SaveHistory(ctx, s.TenantID, s.UserID, history)
	if summary := memory.Summarize(history, r.cfg.SummaryRunes); summary != "" {
		r.deps.Memory.SaveSummary(ctx, s.TenantID, s.UserID, summary)
	}
	r.deps.Memory.LogSession(ctx, s.ID, map[string]any{
		"tenant_id":  s.TenantID,
		"user_id":    s.UserID,
		"turns":      s.turnCount.Load(),
		"dropped":    s.dropped.Load(),
		"started_at": s.CreatedAt.UTC(),
		"ended_at":   time.Now().UTC(),
	})
}

// List returns every live session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session and waits, until ctx ends, for their
// conversations to be persisted.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Close(id)
	}

	done := make(chan struct{})
	go func() {
		r.persist.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) Events() *events.Log { return r.deps.Events }

func (r *Registry) Memory() *memory.Manager { return r.deps.Memory }
