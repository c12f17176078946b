package vad

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSamples = 1600 // 100ms at 16kHz

// tone builds a frame whose RMS equals amplitude exactly.
func tone(amplitude int16, samples int) []byte {
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
	}
	return b
}

type feed struct {
	seg        *Segmenter
	now        time.Time
	boundaries [][]byte
	discards   int
}

func newFeed(cfg Config) *feed {
	return &feed{seg: New(cfg), now: time.Unix(1700000000, 0)}
}

func (f *feed) push(amplitude int16, frames int) {
	for i := 0; i < frames; i++ {
		out, utt := f.seg.Push(tone(amplitude, frameSamples), f.now, false)
		switch out {
		case Boundary:
			f.boundaries = append(f.boundaries, utt)
		case Discarded:
			f.discards++
		}
		f.now = f.now.Add(100 * time.Millisecond)
	}
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(nil))
	assert.Equal(t, 0.0, RMS([]byte{1, 2, 3}), "odd-length frames measure zero")
	assert.InDelta(t, 1000.0, RMS(tone(1000, 160)), 0.001)
	assert.InDelta(t, 50.0, RMS(tone(-50, 160)), 0.001)
}

func TestMinBufferBytes(t *testing.T) {
	assert.Equal(t, 8000, DefaultConfig().MinBufferBytes())
}

func TestRoundTripSingleBoundary(t *testing.T) {
	f := newFeed(DefaultConfig())
	f.push(1000, 20) // 2s of speech
	f.push(50, 20)   // 2s of silence

	require.Len(t, f.boundaries, 1)
	assert.Len(t, f.boundaries[0], 20*frameSamples*2)
	assert.Zero(t, f.discards)
	assert.False(t, f.seg.Speaking())
	assert.Zero(t, f.seg.Buffered())
}

func TestBoundaryFiresAfterSilenceLimit(t *testing.T) {
	f := newFeed(DefaultConfig())
	f.push(1000, 5)
	// The first quiet frame starts the silence clock; 1.5s later is the 16th.
	f.push(50, 15)
	assert.Empty(t, f.boundaries)
	f.push(50, 1)
	assert.Len(t, f.boundaries, 1)
}

func TestShortSilenceNeverProducesBoundary(t *testing.T) {
	for quiet := 1; quiet <= 15; quiet++ {
		f := newFeed(DefaultConfig())
		for round := 0; round < 4; round++ {
			f.push(1000, 3)
			f.push(50, quiet)
		}
		assert.Empty(t, f.boundaries, "quiet run of %d frames", quiet)
		assert.True(t, f.seg.Speaking())
	}
}

func TestShortBurstDiscarded(t *testing.T) {
	f := newFeed(DefaultConfig())
	// 2 frames = 6400 bytes, below the 8000 byte minimum.
	f.push(1000, 2)
	f.push(50, 20)
	assert.Empty(t, f.boundaries)
	assert.Equal(t, 1, f.discards)
	assert.Zero(t, f.seg.Buffered())
}

func TestMutedFramesIgnored(t *testing.T) {
	seg := New(DefaultConfig())
	now := time.Now()
	for i := 0; i < 10; i++ {
		out, utt := seg.Push(tone(5000, frameSamples), now, true)
		assert.Equal(t, Ignored, out)
		assert.Nil(t, utt)
	}
	assert.Zero(t, seg.Buffered())
	assert.False(t, seg.Speaking())
}

func TestHysteresisBand(t *testing.T) {
	f := newFeed(DefaultConfig())
	out, _ := f.seg.Push(tone(200, frameSamples), f.now, false)
	assert.Equal(t, Ignored, out, "between thresholds does not open an utterance")

	f.push(1000, 5)
	f.push(50, 10)
	// Mid-band frames neither extend the buffer nor reset the silence clock.
	f.push(200, 5)
	assert.Equal(t, 5*frameSamples*2, f.seg.Buffered())
	f.push(50, 1)
	assert.Len(t, f.boundaries, 1)
}

func TestLoudFrameResetsSilenceClock(t *testing.T) {
	f := newFeed(DefaultConfig())
	f.push(1000, 5)
	f.push(50, 14)
	f.push(1000, 1)
	f.push(50, 14)
	assert.Empty(t, f.boundaries)
	f.push(50, 2)
	require.Len(t, f.boundaries, 1)
	assert.Len(t, f.boundaries[0], 6*frameSamples*2)
}

func TestUtteranceIsMovedNotShared(t *testing.T) {
	f := newFeed(DefaultConfig())
	f.push(1000, 5)
	f.push(50, 16)
	require.Len(t, f.boundaries, 1)
	first := f.boundaries[0]
	snapshot := append([]byte(nil), first...)

	f.push(3000, 5)
	f.push(50, 16)
	require.Len(t, f.boundaries, 2)
	assert.Equal(t, snapshot, first, "next utterance must not write into the handed-off buffer")
	assert.NotEqual(t, first, f.boundaries[1])
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "boundary", Boundary.String())
	assert.Equal(t, "discarded", Discarded.String())
}
