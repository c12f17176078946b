// Package events keeps a bounded lifecycle log per session for debugging and
// the session inspection endpoints.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPerSession = 200
	DefaultSessions   = 1000

	// TypeTruncated marks where older entries were dropped.
	TypeTruncated = "truncated"
)

type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type sessionLog struct {
	events  []Event
	dropped int
}

// Log keeps the newest entries of the newest sessions.
type Log struct {
	mu          sync.RWMutex
	perSession  int
	maxSessions int
	bySess      map[string]*sessionLog
	order       []string
	now         func() time.Time
}

func NewLog(perSession, maxSessions int) *Log {
	if perSession <= 0 {
		perSession = DefaultPerSession
	}
	if maxSessions <= 0 {
		maxSessions = DefaultSessions
	}
	return &Log{
		perSession:  perSession,
		maxSessions: maxSessions,
		bySess:      make(map[string]*sessionLog),
		now:         time.Now,
	}
}

func (l *Log) Append(sessionID, typ string, payload map[string]any) Event {
	evt := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: l.now().UTC(),
		Payload:   payload,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.bySess[sessionID]
	if !ok {
		sl = &sessionLog{}
		l.bySess[sessionID] = sl
		l.order = append(l.order, sessionID)
		if len(l.order) > l.maxSessions {
			delete(l.bySess, l.order[0])
			l.order = l.order[1:]
		}
	}
	sl.events = append(sl.events, evt)
	if over := len(sl.events) - l.perSession; over > 0 {
		sl.events = append([]Event(nil), sl.events[over:]...)
		sl.dropped += over
	}
	return evt
}

// List returns a copy of a session's entries, oldest first. When entries were
// dropped the first element is a truncation marker carrying the count.
func (l *Log) List(sessionID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sl, ok := l.bySess[sessionID]
	if !ok {
		return nil
	}
	out := make([]Event, 0, len(sl.events)+1)
	if sl.dropped > 0 {
		out = append(out, Event{
			SessionID: sessionID,
			Type:      TypeTruncated,
			Timestamp: sl.events[0].Timestamp,
			Payload:   map[string]any{"dropped": sl.dropped},
		})
	}
	return append(out, sl.events...)
}

// Sessions returns the ids that still have entries, oldest first.
func (l *Log) Sessions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}
