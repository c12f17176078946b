package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWireShapes(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{StateChanged("thinking"), `{"type":"state","state":"thinking"}`},
		{UserTranscript("مرحبا"), `{"type":"user_text","content":"مرحبا"}`},
		{TextDelta("hi"), `{"type":"text","content":"hi"}`},
		{AudioStart(), `{"type":"audio_start"}`},
		{AudioEnd(), `{"type":"audio_end"}`},
		{Pong(), `{"type":"pong"}`},
	}
	for _, tc := range cases {
		b, err := tc.ev.Encode()
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(b))
	}
}

func TestEncodeRejectsAudio(t *testing.T) {
	ev := AudioChunk([]byte{1, 2})
	assert.True(t, ev.Binary())
	_, err := ev.Encode()
	assert.Error(t, err)
}
