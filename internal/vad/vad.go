// Package vad segments a stream of PCM16 frames into utterances using an
// RMS loudness gate with separate onset and offset thresholds.
package vad

import (
	"encoding/binary"
	"math"
	"time"
)

// Config holds the segmentation thresholds.
type Config struct {
	SampleRate   int
	OnsetRMS     float64
	OffsetRMS    float64
	Silence      time.Duration
	MinUtterance time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		OnsetRMS:     300,
		OffsetRMS:    150,
		Silence:      1500 * time.Millisecond,
		MinUtterance: 250 * time.Millisecond,
	}
}

// MinBufferBytes is the smallest utterance, in bytes of mono PCM16, that is
// dispatched. 250ms at 16kHz is 8000 bytes.
func (c Config) MinBufferBytes() int {
	return int(int64(c.SampleRate) * 2 * int64(c.MinUtterance) / int64(time.Second))
}

// Outcome is the result of pushing one frame.
type Outcome int

const (
	// Buffering means an utterance is open and the frame was consumed.
	Buffering Outcome = iota
	// Boundary means an utterance closed and is returned to the caller.
	Boundary
	// Ignored means the frame did not affect segmentation.
	Ignored
	// Discarded means an utterance closed but was too short to dispatch.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Buffering:
		return "buffering"
	case Boundary:
		return "boundary"
	case Ignored:
		return "ignored"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

// RMS returns the root-mean-square sample magnitude of a little-endian
// PCM16 frame. Empty or odd-length frames measure 0.
func RMS(frame []byte) float64 {
	if len(frame) == 0 || len(frame)%2 != 0 {
		return 0
	}
	n := len(frame) / 2
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Segmenter accumulates one session's candidate utterance. It is not safe
// for concurrent use; the session's receive loop is its only caller.
type Segmenter struct {
	cfg          Config
	minBytes     int
	speaking     bool
	silenceSince time.Time
	buf          []byte
}

func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg, minBytes: cfg.MinBufferBytes()}
}

// Push classifies one frame received at now. While muted (synthesized speech
// is playing on the client) frames are dropped so the session never hears its
// own output. On Boundary the buffered utterance is returned and the
// segmenter starts over with a fresh buffer; the returned slice is never
// touched again by the segmenter.
func (s *Segmenter) Push(frame []byte, now time.Time, muted bool) (Outcome, []byte) {
	metricFrames.Inc()
	if muted {
		metricMutedFrames.Inc()
		return Ignored, nil
	}

	rms := RMS(frame)
	switch {
	case rms > s.cfg.OnsetRMS:
		if !s.speaking {
			metricOnsets.Inc()
		}
		s.speaking = true
		s.silenceSince = time.Time{}
		s.buf = append(s.buf, frame...)
		return Buffering, nil

	case rms <= s.cfg.OffsetRMS && s.speaking:
		if s.silenceSince.IsZero() {
			s.silenceSince = now
		}
		if now.Sub(s.silenceSince) < s.cfg.Silence {
			return Buffering, nil
		}
		utterance := s.buf
		s.Reset()
		if len(utterance) < s.minBytes {
			metricDiscards.Inc()
			return Discarded, nil
		}
		metricBoundaries.Inc()
		metricUtteranceBytes.Observe(float64(len(utterance)))
		return Boundary, utterance
	}

	// Between the thresholds: an open utterance stays open.
	if s.speaking {
		return Buffering, nil
	}
	return Ignored, nil
}

// Reset drops any buffered audio and returns to the silent state.
func (s *Segmenter) Reset() {
	s.buf = nil
	s.speaking = false
	s.silenceSince = time.Time{}
}

// Speaking reports whether an utterance is open.
func (s *Segmenter) Speaking() bool { return s.speaking }

// Buffered returns the number of bytes in the open utterance.
func (s *Segmenter) Buffered() int { return len(s.buf) }
