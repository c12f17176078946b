package types

import (
	"encoding/json"
	"fmt"
)

// EventKind tags an outbound event.
type EventKind int

const (
	EventState EventKind = iota
	EventUserTranscript
	EventTextDelta
	EventAudioStart
	EventAudioChunk
	EventAudioEnd
	EventPong
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventUserTranscript:
		return "user_text"
	case EventTextDelta:
		return "text"
	case EventAudioStart:
		return "audio_start"
	case EventAudioChunk:
		return "audio"
	case EventAudioEnd:
		return "audio_end"
	case EventPong:
		return "pong"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Event is one message on a session's outbound stream. Audio chunks travel
// as raw binary frames; every other kind is encoded as a JSON text frame.
type Event struct {
	Kind  EventKind
	State string
	Text  string
	Audio []byte
}

func StateChanged(state string) Event { return Event{Kind: EventState, State: state} }
func UserTranscript(text string) Event { return Event{Kind: EventUserTranscript, Text: text} }
func TextDelta(text string) Event      { return Event{Kind: EventTextDelta, Text: text} }
func AudioStart() Event                { return Event{Kind: EventAudioStart} }
func AudioChunk(pcm []byte) Event      { return Event{Kind: EventAudioChunk, Audio: pcm} }
func AudioEnd() Event                  { return Event{Kind: EventAudioEnd} }
func Pong() Event                      { return Event{Kind: EventPong} }

// Binary reports whether the event is written as a binary frame.
func (e Event) Binary() bool { return e.Kind == EventAudioChunk }

type wireMessage struct {
	Type    string `json:"type"`
	State   string `json:"state,omitempty"`
	Content string `json:"content,omitempty"`
}

// Encode returns the JSON text frame for a structured event.
func (e Event) Encode() ([]byte, error) {
	if e.Binary() {
		return nil, fmt.Errorf("types: %s is a binary event", e.Kind)
	}
	return json.Marshal(wireMessage{Type: e.Kind.String(), State: e.State, Content: e.Text})
}

// Turn is one conversation history entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Delta is one increment of a streamed completion. A non-nil Err ends the stream.
type Delta struct {
	Text string
	Err  error
}

// ControlMessage is a structured message sent by the client.
type ControlMessage struct {
	Type string `json:"type"`
}

const (
	ControlPlaybackDone = "playback_done"
	ControlPing         = "ping"
)
