// Package llm streams chat completions from an OpenAI-compatible endpoint
// such as Groq.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tiryaq/voice/internal/types"
)

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1/"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.7
)

type config struct {
	baseURL     string
	temperature float64
}

type Option func(*config)

func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// Client streams completions for a single model.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	log         *slog.Logger
}

func New(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("llm: api key must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{baseURL: DefaultBaseURL, temperature: DefaultTemperature}
	for _, o := range opts {
		o(cfg)
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
		// Retries belong to the caller, which knows whether text was already spoken.
		option.WithMaxRetries(0),
	)
	return &Client{
		client:      client,
		model:       model,
		temperature: cfg.temperature,
		log:         slog.Default().With("component", "llm"),
	}, nil
}

// StreamCompletion opens a streaming completion. Errors opening the stream are
// returned directly; errors while reading end the channel with a Delta whose
// Err is set.
func (c *Client) StreamCompletion(ctx context.Context, msgs []types.Turn, maxTokens int) (<-chan types.Delta, error) {
	params, err := c.buildParams(msgs, maxTokens)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		metricRequests.WithLabelValues("open_error").Inc()
		return nil, fmt.Errorf("llm: start stream: %w", err)
	}

	ch := make(chan types.Delta, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		first := true
		chars := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			if first {
				first = false
				metricFirstToken.Observe(float64(time.Since(start).Milliseconds()))
			}
			chars += len(text)
			select {
			case ch <- types.Delta{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			metricRequests.WithLabelValues("stream_error").Inc()
			select {
			case ch <- types.Delta{Err: fmt.Errorf("llm: stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		metricRequests.WithLabelValues("ok").Inc()
		c.log.Debug("completion finished", "model", c.model, "ms", time.Since(start).Milliseconds(), "chars", chars)
	}()
	return ch, nil
}

func (c *Client) buildParams(msgs []types.Turn, maxTokens int) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case types.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case types.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("llm: unknown message role %q", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	return params, nil
}
