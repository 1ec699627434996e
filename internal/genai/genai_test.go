package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp *openai.ChatCompletion
	err  error
	last openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.last = params
	return m.resp, m.err
}

// mockEmbeddingService implements embeddingService for testing.
type mockEmbeddingService struct {
	resp *openai.CreateEmbeddingResponse
	err  error
}

func (m *mockEmbeddingService) New(ctx context.Context, params openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	return m.resp, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completion("  Hello World\n")}, model: DefaultModel}
	out, err := client.GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestEmbed_ConvertsToFloat32(t *testing.T) {
	resp := &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float64{0.5, -0.25, 1}}},
	}
	client := &Client{embeddings: &mockEmbeddingService{resp: resp}}
	vec, err := client.Embed(context.Background(), "new phone")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{0.5, -0.25, 1}
	if len(vec) != len(want) {
		t.Fatalf("len = %d, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestEmbed_Empty(t *testing.T) {
	client := &Client{embeddings: &mockEmbeddingService{resp: &openai.CreateEmbeddingResponse{}}}
	if _, err := client.Embed(context.Background(), "x"); !errors.Is(err, ErrNoEmbeddingReturned) {
		t.Errorf("expected ErrNoEmbeddingReturned, got %v", err)
	}
}

func TestEmbed_ServiceError(t *testing.T) {
	client := &Client{embeddings: &mockEmbeddingService{err: errors.New("quota")}}
	if _, err := client.Embed(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Errorf("expected quota error, got %v", err)
	}
}

func TestRewriteNudge_IncludesToneGuide(t *testing.T) {
	mock := &mockChatService{resp: completion("Pause. You regretted this before.")}
	client := &Client{chat: mock, model: DefaultModel}
	out, err := client.RewriteNudge(context.Background(), plan.ToneLuxury, "designer bag", "Impulse warning")
	if err != nil {
		t.Fatalf("RewriteNudge: %v", err)
	}
	if out != "Pause. You regretted this before." {
		t.Errorf("unexpected output %q", out)
	}
	if len(mock.last.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mock.last.Messages))
	}
}

func TestToneGuide_DefaultsToBasic(t *testing.T) {
	if ToneGuide(plan.Tone("unknown")) != ToneGuide(plan.ToneBasic) {
		t.Error("unknown tone should fall back to basic guide")
	}
	if ToneGuide(plan.ToneLuxury) == ToneGuide(plan.ToneSmart) {
		t.Error("luxury and smart guides should differ")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrAPIKeyNotSet) {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"), WithTemperature(0.1))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "gpt-4o" || cli.embeddingModel != DefaultEmbeddingModel || cli.temperature != 0.1 {
		t.Errorf("unexpected client config: %+v", cli)
	}
}
