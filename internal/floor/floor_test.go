package floor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiryaq/voice/internal/types"
)

type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Push(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		name := ev.Kind.String()
		if ev.Kind == types.EventState {
			name += ":" + ev.State
		}
		out = append(out, name)
	}
	return out
}

func TestSpokenTurnLifecycle(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	require.True(t, m.TryDispatch())
	assert.Equal(t, Thinking, m.State())
	assert.False(t, m.Muted())

	m.AudioStarted()
	assert.Equal(t, Speaking, m.State())
	assert.True(t, m.Muted())

	m.Finish()
	assert.Equal(t, Speaking, m.State(), "speaking holds until playback is acknowledged")
	assert.True(t, m.Busy())

	m.PlaybackDone()
	assert.Equal(t, Idle, m.State())
	assert.False(t, m.Busy())

	assert.Equal(t, []string{"state:thinking", "audio_start", "audio_end", "state:listening"}, rec.names())
}

func TestNoSpeechReturnsToListening(t *testing.T) {
	rec := &recorder{}
	m := New(rec)
	require.True(t, m.TryDispatch())
	m.NoSpeech()
	assert.Equal(t, Idle, m.State())
	assert.False(t, m.Busy())
	assert.Equal(t, []string{"state:thinking", "state:listening"}, rec.names())
}

func TestMutualExclusion(t *testing.T) {
	m := New(&recorder{})
	require.True(t, m.TryDispatch())
	assert.False(t, m.TryDispatch(), "second utterance while processing")

	m.AudioStarted()
	m.Finish()
	assert.False(t, m.TryDispatch(), "second utterance while speaking")

	m.PlaybackDone()
	assert.True(t, m.TryDispatch())
}

func TestConcurrentDispatchAdmitsOne(t *testing.T) {
	m := New(&recorder{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TryDispatch() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
}

func TestFailClearsBothFlags(t *testing.T) {
	rec := &recorder{}
	m := New(rec)
	require.True(t, m.TryDispatch())
	m.AudioStarted()
	m.Fail()
	assert.False(t, m.Busy())
	assert.False(t, m.Muted())
	assert.True(t, m.TryDispatch())
}

func TestFinishWithoutAudioReopensGate(t *testing.T) {
	m := New(&recorder{})
	require.True(t, m.TryDispatch())
	m.Finish()
	assert.False(t, m.Busy())
	assert.Equal(t, Idle, m.State())
}

func TestPingAlwaysPongs(t *testing.T) {
	rec := &recorder{}
	m := New(rec)
	require.True(t, m.TryDispatch())
	m.Ping()
	m.AudioStarted()
	m.Ping()
	assert.Equal(t, []string{"state:thinking", "pong", "audio_start", "pong"}, rec.names())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "listening", Idle.String())
	assert.Equal(t, "thinking", Thinking.String())
	assert.Equal(t, "speaking", Speaking.String())
}
