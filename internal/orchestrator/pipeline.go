// Package orchestrator turns one utterance into a spoken answer: transcribe,
// generate with retries, split into sentences and synthesize each sentence as
// soon as it is complete.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/types"
)

var ErrMissingCredentials = errors.New("provider credentials missing")

// StepKind tags a Step.
type StepKind int

const (
	StepTranscript StepKind = iota
	StepText
	StepAudio
	StepApology
	StepDone
	StepFailed
)

func (k StepKind) String() string {
	switch k {
	case StepTranscript:
		return "transcript"
	case StepText:
		return "text"
	case StepAudio:
		return "audio"
	case StepApology:
		return "apology"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	}
	return fmt.Sprintf("step(%d)", int(k))
}

// Step is one output of a pipeline run.
type Step struct {
	Kind  StepKind
	Text  string
	Audio []byte
	Err   error
}

// Config holds the per-pipeline knobs.
type Config struct {
	SampleRate int
	Padding    time.Duration
	MaxTokens  int
	Retry      RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Padding:    200 * time.Millisecond,
		MaxTokens:  150,
		Retry:      DefaultRetryPolicy(),
	}
}

// Providers are the external capabilities a pipeline drives.
type Providers struct {
	STT Transcriber
	LLM Generator
	TTS Synthesizer
}

// Pipeline is bound to one tenant profile for the lifetime of a session. It
// keeps no state between runs apart from the conversation passed in.
type Pipeline struct {
	profile tenant.Profile
	prov    Providers
	pool    *Pool
	cfg     Config
	log     *slog.Logger
}

// NewPipeline validates that every provider is configured.
func NewPipeline(profile tenant.Profile, prov Providers, pool *Pool, cfg Config, log *slog.Logger) (*Pipeline, error) {
	var missing []string
	if prov.STT == nil {
		missing = append(missing, "stt")
	}
	if prov.LLM == nil {
		missing = append(missing, "llm")
	}
	if prov.TTS == nil {
		missing = append(missing, "tts")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	if pool == nil {
		pool = NewPool(1)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{profile: profile, prov: prov, pool: pool, cfg: cfg, log: log}, nil
}

func (p *Pipeline) Profile() tenant.Profile { return p.profile }

// Run processes one utterance. The channel yields the transcript first, then
// text and audio interleaved, and closes when the run is over. A run whose
// transcript is empty closes without any step. On success the exchange is
// appended to conv before StepDone is sent.
func (p *Pipeline) Run(ctx context.Context, audio []byte, conv *Conversation) <-chan Step {
	out := make(chan Step, 16)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				metricPipelinePanics.Inc()
				p.log.Error("pipeline panic", "panic", r)
				emit(ctx, out, Step{Kind: StepFailed, Err: fmt.Errorf("pipeline panic: %v", r)})
			}
		}()
		p.run(ctx, audio, conv, out)
	}()
	return out
}

func emit(ctx context.Context, out chan<- Step, s Step) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) run(ctx context.Context, audio []byte, conv *Conversation, out chan<- Step) {
	text := p.transcribe(ctx, audio)
	if text == "" {
		return
	}
	if !emit(ctx, out, Step{Kind: StepTranscript, Text: text}) {
		return
	}

	msgs := BuildMessages(p.profile, conv, text)
	first, rest, err := p.open(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metricLLMFailures.Inc()
		p.log.Warn("generation failed, apologizing", "err", err, "attempts", p.cfg.Retry.Attempts)
		apology := p.profile.Persona.Apology
		if !emit(ctx, out, Step{Kind: StepApology, Text: apology}) {
			return
		}
		p.speak(ctx, apology, out)
		return
	}

	var (
		reply   strings.Builder
		chunker Chunker
	)
	handle := func(d types.Delta) bool {
		if d.Text == "" {
			return true
		}
		reply.WriteString(d.Text)
		if !emit(ctx, out, Step{Kind: StepText, Text: d.Text}) {
			return false
		}
		for _, sentence := range chunker.Feed(d.Text) {
			if !p.speak(ctx, sentence, out) {
				return false
			}
		}
		return true
	}

	if !handle(first) {
		return
	}
	for d := range rest {
		if d.Err != nil {
			metricLLMStreamErrors.Inc()
			p.log.Warn("generation stream ended early", "err", d.Err)
			break
		}
		if !handle(d) {
			return
		}
	}
	if tail := chunker.Flush(); tail != "" {
		if !p.speak(ctx, tail, out) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	conv.Append(text, reply.String())
	emit(ctx, out, Step{Kind: StepDone, Text: reply.String()})
}

// transcribe returns the trimmed transcript, or "" on any provider failure.
func (p *Pipeline) transcribe(ctx context.Context, audio []byte) string {
	padded := PadSilence(audio, p.cfg.SampleRate, p.cfg.Padding)
	var text string
	start := time.Now()
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		t, err := p.prov.STT.Transcribe(ctx, padded, p.profile.Persona.Language)
		text = t
		return err
	})
	metricSTTLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricSTTFailures.Inc()
		p.log.Warn("transcription failed", "err", err, "bytes", len(audio))
		return ""
	}
	return strings.TrimSpace(text)
}

// open starts the completion stream under the retry policy. The first delta
// is read before returning so a stream that fails immediately is retried; a
// stream that has produced text is never replayed.
func (p *Pipeline) open(ctx context.Context, msgs []types.Turn) (types.Delta, <-chan types.Delta, error) {
	var (
		first types.Delta
		rest  <-chan types.Delta
	)
	start := time.Now()
	err := p.cfg.Retry.Do(ctx, func() error {
		var stream <-chan types.Delta
		err := p.pool.Do(ctx, func(ctx context.Context) error {
			s, err := p.prov.LLM.StreamCompletion(ctx, msgs, p.cfg.MaxTokens)
			stream = s
			return err
		})
		if err != nil {
			return err
		}
		select {
		case d, ok := <-stream:
			if !ok {
				first, rest = types.Delta{}, stream
				return nil
			}
			if d.Err != nil {
				return d.Err
			}
			first, rest = d, stream
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return types.Delta{}, nil, err
	}
	metricLLMFirstToken.Observe(float64(time.Since(start).Milliseconds()))
	return first, rest, nil
}

// speak synthesizes one sentence and forwards its audio. It reports false
// only when ctx ended; synthesis failures just yield no audio.
func (p *Pipeline) speak(ctx context.Context, text string, out chan<- Step) bool {
	release, err := p.pool.Acquire(ctx)
	if err != nil {
		return false
	}
	defer release()

	metricTTSRequests.Inc()
	for pcm := range p.prov.TTS.StreamSpeech(ctx, text, p.profile.Persona.VoiceID) {
		if len(pcm) == 0 {
			continue
		}
		metricTTSBytes.Add(float64(len(pcm)))
		if !emit(ctx, out, Step{Kind: StepAudio, Audio: pcm}) {
			return false
		}
	}
	return ctx.Err() == nil
}

// PadSilence surrounds 16-bit mono PCM with d of digital silence on each side.
func PadSilence(pcm []byte, sampleRate int, d time.Duration) []byte {
	n := int(int64(sampleRate)*int64(d)/int64(time.Second)) * 2
	if n <= 0 {
		return pcm
	}
	out := make([]byte, n+len(pcm)+n)
	copy(out[n:], pcm)
	return out
}
