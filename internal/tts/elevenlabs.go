// Package tts streams raw PCM speech from ElevenLabs.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModel   = "eleven_turbo_v2_5"
	DefaultVoiceID = "pNInz6obpgnuMvkhbuZ5"
	DefaultTimeout = 8 * time.Second

	readSize = 16384
)

type config struct {
	baseURL    string
	model      string
	sampleRate int
	timeout    time.Duration
	stability  float64
	similarity float64
}

type Option func(*config)

func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithModel(m string) Option {
	return func(c *config) { c.model = m }
}

func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// ElevenLabs synthesizes each sentence with one streaming HTTP request.
type ElevenLabs struct {
	apiKey string
	cfg    config
	http   *http.Client
	log    *slog.Logger
}

func New(apiKey string, opts ...Option) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, errors.New("tts: api key must not be empty")
	}
	cfg := config{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		sampleRate: 16000,
		timeout:    DefaultTimeout,
		stability:  0.5,
		similarity: 0.75,
	}
	for _, o := range opts {
		o(&cfg)
	}
	// The timeout covers connecting and waiting for the first byte. The body
	// is streamed for as long as the request context allows.
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.timeout}).DialContext,
		TLSHandshakeTimeout:   cfg.timeout,
		ResponseHeaderTimeout: cfg.timeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &ElevenLabs{
		apiKey: apiKey,
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		log:    slog.Default().With("component", "tts"),
	}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// StreamSpeech returns PCM chunks as they arrive. Any failure is logged and
// ends the stream; chunks always hold whole 16-bit samples.
func (e *ElevenLabs) StreamSpeech(ctx context.Context, text, voiceID string) <-chan []byte {
	ch := make(chan []byte, 8)
	text = strings.TrimSpace(text)
	if text == "" {
		close(ch)
		return ch
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}

	go func() {
		defer close(ch)
		start := time.Now()
		n, err := e.stream(ctx, text, voiceID, ch, start)
		metricDuration.Observe(float64(time.Since(start).Milliseconds()))
		switch {
		case err == nil:
			metricSynthesis.WithLabelValues("ok").Inc()
		case ctx.Err() != nil:
			metricSynthesis.WithLabelValues("cancelled").Inc()
		default:
			metricSynthesis.WithLabelValues("error").Inc()
			e.log.Warn("synthesis failed", "voice", voiceID, "err", err, "bytes", n)
		}
	}()
	return ch
}

func (e *ElevenLabs) stream(ctx context.Context, text, voiceID string, ch chan<- []byte, start time.Time) (int, error) {
	body, err := json.Marshal(synthRequest{
		Text:          text,
		ModelID:       e.cfg.model,
		VoiceSettings: voiceSettings{Stability: e.cfg.stability, SimilarityBoost: e.cfg.similarity},
	})
	if err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("output_format", fmt.Sprintf("pcm_%d", e.cfg.sampleRate))
	q.Set("optimize_streaming_latency", "3")
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?%s", e.cfg.baseURL, url.PathEscape(voiceID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/l16")
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	metricFirstByte.Observe(float64(time.Since(start).Milliseconds()))
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	total := 0
	var carry []byte
	buf := make([]byte, readSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			even := len(data) &^ 1
			carry = append([]byte(nil), data[even:]...)
			if even > 0 {
				chunk := append([]byte(nil), data[:even]...)
				select {
				case ch <- chunk:
					total += even
				case <-ctx.Done():
					return total, ctx.Err()
				}
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// CheckVoice verifies that the key can read the given voice.
func (e *ElevenLabs) CheckVoice(ctx context.Context, voiceID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.baseURL+"/v1/voices/"+url.PathEscape(voiceID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("tts: voice %s: status %d", voiceID, resp.StatusCode)
	}
	return nil
}
