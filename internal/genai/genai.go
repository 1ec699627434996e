// Package genai wraps the OpenAI API for nudge rewriting and text embeddings.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTemperature    = 0.4
)

var (
	ErrAPIKeyNotSet        = errors.New("genai: API key not set")
	ErrNoChoicesReturned   = errors.New("genai: no choices returned")
	ErrNoEmbeddingReturned = errors.New("genai: no embedding returned")
)

// chatService is the subset of the chat completions API the client uses.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// embeddingService is the subset of the embeddings API the client uses.
type embeddingService interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// WithTemperature sets the sampling temperature for chat completions.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// Client generates chat completions and embeddings.
type Client struct {
	chat           chatService
	embeddings     embeddingService
	model          string
	embeddingModel string
	temperature    float64
}

// NewClient builds a client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:          DefaultModel,
		EmbeddingModel: DefaultEmbeddingModel,
		Temperature:    DefaultTemperature,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:           &cli.Chat.Completions,
		embeddings:     &cli.Embeddings,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
	}, nil
}

// GeneratePrompt returns the first completion for the given system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbeddingReturned
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}

const rewriteSystemPrompt = "You are Finivo, a personal finance companion that helps people pause before impulse purchases. " +
	"Rewrite the nudge you are given as one or two short sentences. Keep every fact it states and never invent numbers."

// toneGuides maps each tone to its voice instruction.
var toneGuides = map[plan.Tone]string{
	plan.ToneBasic:  "Be friendly, soft, and suggestive.",
	plan.ToneSmart:  "Be firm but empathetic, and personalize the advice.",
	plan.ToneLuxury: "Be highly protective, assertive, and act like a strong financial guardian.",
}

// ToneGuide returns the voice instruction for a tone, defaulting to basic.
func ToneGuide(tone plan.Tone) string {
	if g, ok := toneGuides[tone]; ok {
		return g
	}
	return toneGuides[plan.ToneBasic]
}

// RewriteNudge rephrases a composed nudge in the given tone.
func (c *Client) RewriteNudge(ctx context.Context, tone plan.Tone, intent, message string) (string, error) {
	user := fmt.Sprintf("Spending intent: %s\nNudge: %s\nTone: %s", intent, message, ToneGuide(tone))
	out, err := c.GeneratePrompt(ctx, rewriteSystemPrompt, user)
	if err != nil {
		slog.Debug("Client.RewriteNudge: completion failed", "tone", tone, "error", err)
		return "", err
	}
	return out, nil
}
