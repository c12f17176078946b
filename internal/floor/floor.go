// Package floor decides who holds the conversational floor in a session:
// the caller (listening), the pipeline (thinking) or synthesized speech
// (speaking). A new utterance is only admitted when nobody else holds it.
package floor

import (
	"sync"

	"tiryaq/voice/internal/types"
)

// State is the externally visible session state.
type State int

const (
	Idle State = iota
	Thinking
	Speaking
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	}
	return "listening"
}

// Sink receives the events a transition produces.
type Sink interface {
	Push(types.Event)
}

// Manager holds the processing and speaking flags of one session. Transitions
// may be called from the receive loop and from the turn goroutine; each one
// updates the flags and enqueues its events atomically.
type Manager struct {
	mu         sync.Mutex
	sink       Sink
	processing bool
	speaking   bool
	state      State
}

func New(sink Sink) *Manager {
	return &Manager{sink: sink}
}

// TryDispatch admits a new utterance if no turn is running and no speech is
// playing. It reports whether the utterance was admitted.
func (m *Manager) TryDispatch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processing || m.speaking {
		metricGateRejects.Inc()
		return false
	}
	m.processing = true
	m.record()
	m.sink.Push(types.StateChanged(Thinking.String()))
	return true
}

// NoSpeech ends a turn whose transcript was empty.
func (m *Manager) NoSpeech() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink.Push(types.StateChanged(Idle.String()))
	m.processing = false
	m.record()
}

// AudioStarted marks the first synthesized audio of a turn.
func (m *Manager) AudioStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = true
	m.record()
	m.sink.Push(types.AudioStart())
}

// Finish ends a turn that ran to completion. Speaking stays set until the
// client reports that playback finished.
func (m *Manager) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink.Push(types.AudioEnd())
	m.processing = false
	m.record()
}

// Fail ends a turn that broke down. Both flags clear so the session keeps
// listening.
func (m *Manager) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = false
	m.processing = false
	m.record()
	m.sink.Push(types.StateChanged(Idle.String()))
}

// PlaybackDone handles the client's report that synthesized audio finished
// playing. It is the only way capture reopens after a spoken response.
func (m *Manager) PlaybackDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = false
	m.record()
	m.sink.Push(types.StateChanged(Idle.String()))
}

// Ping answers a keepalive regardless of state.
func (m *Manager) Ping() {
	m.sink.Push(types.Pong())
}

// Muted reports whether inbound audio must be ignored.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// Busy reports whether a new utterance would be rejected.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing || m.speaking
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// record derives the visible state from the flags and counts the transition.
func (m *Manager) record() {
	to := Idle
	switch {
	case m.speaking:
		to = Speaking
	case m.processing:
		to = Thinking
	}
	from := m.state
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	m.state = to
}
