package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tiryaq/voice/internal/types"
)

// Floor is the part of the session state machine a turn drives.
type Floor interface {
	NoSpeech()
	AudioStarted()
	Finish()
	Fail()
}

// Sink receives the events a turn produces.
type Sink interface {
	Push(types.Event)
}

// Outcome summarizes how a turn ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeNoSpeech  Outcome = "no_speech"
	OutcomeApology   Outcome = "apology"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Turn runs one admitted utterance through a pipeline and maps its steps onto
// floor transitions and outbound events. The caller has already moved the
// floor to thinking.
type Turn struct {
	ID       string
	pipeline *Pipeline
	conv     *Conversation
	floor    Floor
	sink     Sink
	log      *slog.Logger
}

func NewTurn(p *Pipeline, conv *Conversation, fl Floor, sink Sink, log *slog.Logger) *Turn {
	id := uuid.NewString()
	if log == nil {
		log = slog.Default()
	}
	return &Turn{
		ID:       id,
		pipeline: p,
		conv:     conv,
		floor:    fl,
		sink:     sink,
		log:      log.With("turn", id),
	}
}

// Run blocks until the turn is over. It always leaves the floor released:
// panics and cancellations end in Fail.
func (t *Turn) Run(ctx context.Context, audio []byte) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("turn panic", "panic", r)
			t.floor.Fail()
			outcome = OutcomeFailed
		}
		metricTurns.WithLabelValues(string(outcome)).Inc()
		metricTurnDuration.Observe(float64(time.Since(start).Milliseconds()))
		t.log.Info("turn finished", "outcome", outcome, "ms", time.Since(start).Milliseconds())
	}()

	var (
		transcribed bool
		speaking    bool
		apologized  bool
		done        bool
	)
	for step := range t.pipeline.Run(ctx, audio, t.conv) {
		switch step.Kind {
		case StepTranscript:
			transcribed = true
			t.log.Info("user said", "text", step.Text)
			t.sink.Push(types.UserTranscript(step.Text))
		case StepText:
			t.sink.Push(types.TextDelta(step.Text))
		case StepApology:
			apologized = true
			t.sink.Push(types.TextDelta(step.Text))
		case StepAudio:
			if !speaking {
				speaking = true
				metricFirstAudio.Observe(float64(time.Since(start).Milliseconds()))
				t.floor.AudioStarted()
			}
			t.sink.Push(types.AudioChunk(step.Audio))
		case StepDone:
			done = true
		case StepFailed:
			t.log.Error("pipeline failed", "err", step.Err)
			t.floor.Fail()
			return OutcomeFailed
		}
	}

	switch {
	case ctx.Err() != nil:
		t.floor.Fail()
		return OutcomeCancelled
	case !transcribed:
		t.floor.NoSpeech()
		return OutcomeNoSpeech
	}
	t.floor.Finish()
	switch {
	case apologized:
		return OutcomeApology
	case done:
		return OutcomeAnswered
	}
	return OutcomeFailed
}
