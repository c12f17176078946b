// Package stt transcribes finished utterances with an OpenAI-compatible
// transcription endpoint.
package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel      = "whisper-1"
	DefaultSampleRate = 16000
)

type options struct {
	baseURL    string
	model      string
	sampleRate int
	timeout    time.Duration
}

type Option func(*options)

func WithBaseURL(url string) Option { return func(o *options) { o.baseURL = url } }

func WithModel(model string) Option { return func(o *options) { o.model = model } }

func WithSampleRate(rate int) Option { return func(o *options) { o.sampleRate = rate } }

func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// Whisper sends each utterance as a single WAV upload.
type Whisper struct {
	client     openai.Client
	model      string
	sampleRate int
	log        *slog.Logger
}

func New(apiKey string, opts ...Option) (*Whisper, error) {
	if apiKey == "" {
		return nil, errors.New("stt: api key must not be empty")
	}
	o := options{model: DefaultModel, sampleRate: DefaultSampleRate}
	for _, fn := range opts {
		fn(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The pipeline decides what a failed transcription means.
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if o.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: o.timeout}))
	}
	return &Whisper{
		client:     openai.NewClient(reqOpts...),
		model:      o.model,
		sampleRate: o.sampleRate,
		log:        slog.Default().With("component", "stt"),
	}, nil
}

// Transcribe uploads pcm (16-bit mono little-endian) and returns the text.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	start := time.Now()
	body, err := EncodeWAV(pcm, w.sampleRate)
	if err != nil {
		metricRequests.WithLabelValues("encode_error").Inc()
		return "", err
	}
	metricAudioBytes.Add(float64(len(pcm)))

	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(w.model),
		File:  openai.File(bytes.NewReader(body), "utterance.wav", "audio/wav"),
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	res, err := w.client.Audio.Transcriptions.New(ctx, params)
	metricLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("stt: transcribe: %w", err)
	}
	metricRequests.WithLabelValues("ok").Inc()
	w.log.Debug("transcribed", "ms", time.Since(start).Milliseconds(), "bytes", len(pcm), "chars", len(res.Text))
	return res.Text, nil
}

// EncodeWAV wraps 16-bit mono PCM in a WAV container. A trailing odd byte is
// dropped.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	var buf seekBuffer
	enc := wav.NewEncoder(&buf, sampleRate, 16, 1, 1)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("stt: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("stt: close wav: %w", err)
	}
	return buf.b, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type seekBuffer struct {
	b []byte
	i int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.i + int64(len(p))
	if end > int64(len(s.b)) {
		s.b = append(s.b, make([]byte, end-int64(len(s.b)))...)
	}
	copy(s.b[s.i:end], p)
	s.i = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var n int64
	switch whence {
	case io.SeekStart:
		n = offset
	case io.SeekCurrent:
		n = s.i + offset
	case io.SeekEnd:
		n = int64(len(s.b)) + offset
	default:
		return 0, errors.New("stt: invalid whence")
	}
	if n < 0 {
		return 0, errors.New("stt: negative position")
	}
	s.i = n
	return n, nil
}
