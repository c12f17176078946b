package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiryaq/voice/internal/types"
)

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

func collect(t *testing.T, ch <-chan types.Delta) (string, error) {
	t.Helper()
	var b strings.Builder
	for d := range ch {
		if d.Err != nil {
			return b.String(), d.Err
		}
		b.WriteString(d.Text)
	}
	return b.String(), nil
}

func TestStreamCompletion(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"أهلاً", "، كيف", " حالك؟"} {
			_, _ = w.Write([]byte(sseChunk(c)))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c, err := New("gsk-test", "test-model", WithBaseURL(srv.URL+"/"), WithTemperature(0.5))
	require.NoError(t, err)
	ch, err := c.StreamCompletion(context.Background(), []types.Turn{
		{Role: types.RoleSystem, Content: "sys"},
		{Role: types.RoleUser, Content: "q1"},
		{Role: types.RoleAssistant, Content: "a1"},
		{Role: types.RoleUser, Content: "q2"},
	}, 150)
	require.NoError(t, err)

	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "أهلاً، كيف حالك؟", text)

	assert.Equal(t, "test-model", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, 150, body["max_tokens"])
	assert.EqualValues(t, 0.5, body["temperature"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestStreamCompletionOpenErrorIsNotRetriedInternally(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	c, err := New("gsk-test", "", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	_, err = c.StreamCompletion(context.Background(), []types.Turn{{Role: types.RoleUser, Content: "q"}}, 10)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestUnknownRole(t *testing.T) {
	c, err := New("k", "m")
	require.NoError(t, err)
	_, err = c.StreamCompletion(context.Background(), []types.Turn{{Role: "tool", Content: "x"}}, 10)
	assert.ErrorContains(t, err, "unknown message role")
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("", "m")
	assert.Error(t, err)
}
