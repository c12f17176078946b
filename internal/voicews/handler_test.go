package voicews

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "nhooyr.io/websocket"

	"tiryaq/voice/internal/orchestrator"
	"tiryaq/voice/internal/sessions"
	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/types"
)

type oneTenant struct{}

func (oneTenant) Resolve(id string) (tenant.Profile, error) {
	if id != "clinic" {
		return tenant.Profile{}, tenant.ErrTenantNotFound
	}
	return tenant.Profile{ID: id, Name: "Clinic", Persona: tenant.Persona{Name: "Nour", VoiceID: "v", Language: "ar"}}, nil
}

type fixedSTT struct{}

func (fixedSTT) Transcribe(ctx context.Context, pcm []byte, lang string) (string, error) {
	return "when do you open", nil
}

type fixedLLM struct{}

func (fixedLLM) StreamCompletion(ctx context.Context, msgs []types.Turn, maxTokens int) (<-chan types.Delta, error) {
	ch := make(chan types.Delta, 1)
	ch <- types.Delta{Text: "At nine."}
	close(ch)
	return ch, nil
}

type fixedTTS struct{}

func (fixedTTS) StreamSpeech(ctx context.Context, text, voice string) <-chan []byte {
	ch := make(chan []byte, 1)
	ch <- []byte{1, 0, 2, 0}
	close(ch)
	return ch
}

func newTestServer(t *testing.T) (*httptest.Server, *sessions.Registry) {
	t.Helper()
	cfg := sessions.DefaultConfig()
	cfg.VAD.Silence = 0
	reg := sessions.NewRegistry(context.Background(), sessions.Deps{
		Resolver:  oneTenant{},
		Providers: orchestrator.Providers{STT: fixedSTT{}, LLM: fixedLLM{}, TTS: fixedTTS{}},
	}, cfg)
	s := NewServer(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/session/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ws/session/"), "/")
		s.HandleSession(w, r, parts[0], parts[1])
	})
	mux.HandleFunc("/ws/echo", s.HandleEcho)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, path string) *ws.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	return c
}

func frame(amplitude int16) []byte {
	b := make([]byte, 3200)
	for i := 0; i < 1600; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

// next reads one message and names it like the wire type, "audio" for binary.
func next(t *testing.T, ctx context.Context, c *ws.Conn) string {
	t.Helper()
	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	if typ == ws.MessageBinary {
		return "audio"
	}
	var m struct {
		Type  string `json:"type"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(data, &m))
	if m.State != "" {
		return m.Type + ":" + m.State
	}
	return m.Type
}

func TestSessionRoundTrip(t *testing.T) {
	srv, reg := newTestServer(t)
	c := dial(t, srv, "/ws/session/clinic/u1")
	defer c.Close(ws.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Write(ctx, ws.MessageBinary, frame(2000)))
	}
	require.NoError(t, c.Write(ctx, ws.MessageBinary, frame(10)))

	var got []string
	for len(got) < 6 {
		got = append(got, next(t, ctx, c))
	}
	assert.Equal(t, []string{"state:thinking", "user_text", "text", "audio_start", "audio", "audio_end"}, got)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, c.Write(ctx, ws.MessageText, []byte(`{"type":"playback_done"}`)))
	assert.Equal(t, "state:listening", next(t, ctx, c))

	require.NoError(t, c.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, "pong", next(t, ctx, c))

	require.NoError(t, c.Close(ws.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownTenantClosesWithConfigError(t *testing.T) {
	srv, reg := newTestServer(t)
	c := dial(t, srv, "/ws/session/nobody/u1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusConfigError, ws.CloseStatus(err))
	assert.Zero(t, reg.Len())
}

func TestEcho(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, "/ws/echo")
	defer c.Close(ws.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ws.MessageText, typ)
	assert.Equal(t, "HANDSHAKE_SUCCESS", string(data))
}

func TestCloseReasonTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ب", 100)
	r := closeReason(long)
	assert.LessOrEqual(t, len(r), 123)
	assert.True(t, strings.HasPrefix(long, r))
	assert.Equal(t, "short", closeReason("short"))
}
