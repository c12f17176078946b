package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/types"
)

type fakeSTT struct {
	text string
	err  error

	mu    sync.Mutex
	calls int
	got   []byte
	lang  string
}

func (f *fakeSTT) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = pcm
	f.lang = language
	return f.text, f.err
}

// fakeLLM fails the first failOpen calls when opening, then streams deltas.
// If midErr is set it is sent after the deltas.
type fakeLLM struct {
	deltas   []string
	failOpen int
	failAll  bool
	midErr   error

	mu    sync.Mutex
	calls int
	msgs  [][]types.Turn
	max   int
}

var errUpstream = errors.New("503 upstream overloaded")

func (f *fakeLLM) StreamCompletion(ctx context.Context, msgs []types.Turn, maxTokens int) (<-chan types.Delta, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.msgs = append(f.msgs, msgs)
	f.max = maxTokens
	f.mu.Unlock()

	if f.failAll || call <= f.failOpen {
		return nil, errUpstream
	}
	ch := make(chan types.Delta, len(f.deltas)+1)
	for _, d := range f.deltas {
		ch <- types.Delta{Text: d}
	}
	if f.midErr != nil {
		ch <- types.Delta{Err: f.midErr}
	}
	close(ch)
	return ch, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTTS returns the sentence bytes as one audio chunk, prefixed with "pcm:".
type fakeTTS struct {
	silent bool

	mu    sync.Mutex
	texts []string
	voice string
}

func (f *fakeTTS) StreamSpeech(ctx context.Context, text, voiceID string) <-chan []byte {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.voice = voiceID
	f.mu.Unlock()

	ch := make(chan []byte, 1)
	if !f.silent {
		ch <- []byte("pcm:" + text)
	}
	close(ch)
	return ch
}

func (f *fakeTTS) sentences() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func testProfile() tenant.Profile {
	return tenant.Profile{
		ID:   "clinic",
		Name: "Clinic One",
		Persona: tenant.Persona{
			Name:     "Nour",
			VoiceID:  "voice-1",
			Language: "ar",
			Rules:    []string{"Always greet by name."},
			Refusal:  "I do not have that information.",
			Apology:  tenant.DefaultApology,
		},
		Knowledge: `{"hours":"9-5"}`,
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.Initial = time.Millisecond
	cfg.Retry.Max = 4 * time.Millisecond
	return cfg
}
