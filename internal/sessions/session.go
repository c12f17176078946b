package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tiryaq/voice/internal/events"
	"tiryaq/voice/internal/floor"
	"tiryaq/voice/internal/orchestrator"
	"tiryaq/voice/internal/outbound"
	"tiryaq/voice/internal/types"
	"tiryaq/voice/internal/vad"
)

var ErrUnknownControl = errors.New("unknown control message")

// Session is the state of one connected caller. HandleFrame and HandleControl
// must be called from a single receive goroutine; turns run on their own.
type Session struct {
	ID        string
	TenantID  string
	UserID    string
	CreatedAt time.Time

	seg      *vad.Segmenter
	floor    *floor.Manager
	queue    *outbound.Queue
	conv     *orchestrator.Conversation
	pipeline *orchestrator.Pipeline
	events   *events.Log
	log      *slog.Logger
	now      func() time.Time

	turnCtx     context.Context
	cancelTurns context.CancelFunc
	turns       sync.WaitGroup
	turnCount   atomic.Int64
	dropped     atomic.Int64

	// mu orders turn dispatch against close.
	mu     sync.Mutex
	closed bool
}

// Info is the externally visible summary of a session.
type Info struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Persona   string    `json:"persona"`
	State     string    `json:"state"`
	Turns     int64     `json:"turns"`
	Dropped   int64     `json:"dropped_utterances"`
	History   int       `json:"history"`
	Queued    int       `json:"queued_events"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleFrame feeds one inbound audio frame to the segmenter and dispatches a
// completed utterance if the floor is free. Frames arriving after the session
// closed are ignored.
func (s *Session) HandleFrame(frame []byte) vad.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Ignored
	}
	outcome, utterance := s.seg.Push(frame, s.now(), s.floor.Muted())
	if outcome != vad.Boundary {
		return outcome
	}
	if !s.floor.TryDispatch() {
		s.dropped.Add(1)
		metricUtterancesDropped.Inc()
		s.log.Debug("utterance dropped, turn in progress", "bytes", len(utterance))
		return outcome
	}
	s.dispatch(utterance)
	return outcome
}

// dispatch starts a turn. Callers hold s.mu.
func (s *Session) dispatch(utterance []byte) {
	n := s.turnCount.Add(1)
	turn := orchestrator.NewTurn(s.pipeline, s.conv, s.floor, s.queue, s.log)
	s.events.Append(s.ID, "utterance", map[string]any{"turn": turn.ID, "bytes": len(utterance), "n": n})

	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		outcome := turn.Run(s.turnCtx, utterance)
		s.events.Append(s.ID, "turn_finished", map[string]any{"turn": turn.ID, "outcome": string(outcome)})
	}()
}

// HandleControl applies a structured client message.
func (s *Session) HandleControl(raw []byte) error {
	var msg types.ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("control message: %w", err)
	}
	switch msg.Type {
	case types.ControlPlaybackDone:
		s.floor.PlaybackDone()
		s.events.Append(s.ID, "playback_done", nil)
	case types.ControlPing:
		s.floor.Ping()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownControl, msg.Type)
	}
	return nil
}

// Drain writes the session's outbound events to c until the session closes,
// ctx ends or a write fails.
func (s *Session) Drain(ctx context.Context, c outbound.Conn) {
	s.queue.Run(ctx, c)
}

// markClosed reports whether this call closed the session. Once it returns no
// new turn can start, so Wait afterwards covers every turn.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// Wait blocks until every turn started so far has finished.
func (s *Session) Wait() {
	s.turns.Wait()
}

func (s *Session) State() floor.State { return s.floor.State() }

func (s *Session) Conversation() *orchestrator.Conversation { return s.conv }

func (s *Session) Info() Info {
	return Info{
		ID:        s.ID,
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		Persona:   s.pipeline.Profile().Persona.Name,
		State:     s.floor.State().String(),
		Turns:     s.turnCount.Load(),
		Dropped:   s.dropped.Load(),
		History:   s.conv.Len(),
		Queued:    s.queue.Len(),
		CreatedAt: s.CreatedAt,
	}
}
