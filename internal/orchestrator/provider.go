package orchestrator

import (
	"context"

	"tiryaq/voice/internal/types"
)

// Transcriber turns one utterance of 16-bit PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, language string) (string, error)
}

// Generator streams a chat completion. The returned error covers opening the
// stream; failures after that arrive as a Delta with Err set, after which the
// channel is closed.
type Generator interface {
	StreamCompletion(ctx context.Context, msgs []types.Turn, maxTokens int) (<-chan types.Delta, error)
}

// Synthesizer streams raw PCM for text. Failures end the stream early; they
// are never reported to the caller.
type Synthesizer interface {
	StreamSpeech(ctx context.Context, text, voiceID string) <-chan []byte
}
