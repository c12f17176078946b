package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiryaq/voice/internal/config"
	"tiryaq/voice/internal/orchestrator"
	"tiryaq/voice/internal/sessions"
	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/types"
	"tiryaq/voice/internal/voicews"
)

type mockResolver struct{}

func (mockResolver) Resolve(id string) (tenant.Profile, error) {
	return tenant.Profile{ID: id, Persona: tenant.Persona{Name: "Nour"}}, nil
}

type mockSTT struct{}

func (mockSTT) Transcribe(context.Context, []byte, string) (string, error) { return "", nil }

type mockLLM struct{}

func (mockLLM) StreamCompletion(context.Context, []types.Turn, int) (<-chan types.Delta, error) {
	ch := make(chan types.Delta)
	close(ch)
	return ch, nil
}

type mockTTS struct{}

func (mockTTS) StreamSpeech(context.Context, string, string) <-chan []byte {
	ch := make(chan []byte)
	close(ch)
	return ch
}

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *sessions.Registry) {
	t.Helper()
	reg := sessions.NewRegistry(context.Background(), sessions.Deps{
		Resolver:  mockResolver{},
		Providers: orchestrator.Providers{STT: mockSTT{}, LLM: mockLLM{}, TTS: mockTTS{}},
	}, sessions.DefaultConfig())
	h := NewHandlers(cfg, reg, voicews.NewServer(reg), nil)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, reg
}

func getJSON(t *testing.T, url string, want int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, want, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func testConfig(t *testing.T) config.Config {
	var cfg config.Config
	cfg.Server.AppName = "Tiryaq Voice AI"
	cfg.Server.Env = "test"
	cfg.Server.StaticDir = t.TempDir()
	cfg.Tenants.DataDir = t.TempDir()
	return cfg
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	h := getJSON(t, srv.URL+"/health", http.StatusOK)
	assert.Equal(t, "healthy", h["status"])
	assert.Equal(t, "Tiryaq Voice AI", h["service"])
	assert.Equal(t, Version, h["version"])
	assert.Equal(t, "test", h["env"])

	d := getJSON(t, srv.URL+"/ws/debug", http.StatusOK)
	assert.Equal(t, "online", d["status"])
	assert.Equal(t, true, d["data_exists"])
}

func TestReadyReflectsCredentials(t *testing.T) {
	cfg := testConfig(t)
	srv, _ := newTestServer(t, cfg)
	st := getJSON(t, srv.URL+"/readyz", http.StatusServiceUnavailable)
	assert.Equal(t, false, st["ok"])

	cfg.STT.APIKey, cfg.LLM.APIKey, cfg.Eleven.APIKey = "a", "b", "c"
	srv, _ = newTestServer(t, cfg)
	st = getJSON(t, srv.URL+"/readyz", http.StatusOK)
	assert.Equal(t, true, st["ok"])
}

func TestSessionsAndEvents(t *testing.T) {
	srv, reg := newTestServer(t, testConfig(t))

	s, err := reg.Open(context.Background(), "clinic", "u1")
	require.NoError(t, err)

	list := getJSON(t, srv.URL+"/sessions", http.StatusOK)
	require.Len(t, list["sessions"], 1)

	evs := getJSON(t, srv.URL+"/sessions/"+s.ID+"/events", http.StatusOK)
	assert.Equal(t, s.ID, evs["session_id"])
	assert.NotEmpty(t, evs["events"])

	resp, err := http.Get(srv.URL + "/sessions/unknown/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestIndexFallbackAndStatic(t *testing.T) {
	cfg := testConfig(t)
	srv, _ := newTestServer(t, cfg)

	banner := getJSON(t, srv.URL+"/", http.StatusOK)
	assert.Equal(t, "active", banner["status"])

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.StaticDir, IndexFile), []byte("<html>hi</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server.StaticDir, "app.js"), []byte("x"), 0o644))

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "hi")

	resp, err = http.Get(srv.URL + "/static/app.js")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "x", string(body))

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sessions_active")
}
