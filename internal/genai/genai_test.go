package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
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

func TestGenerateReplySuccess(t *testing.T) {
	mockResp := &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	chat := &mockChatService{resp: mockResp}
	client := &Client{chat: chat, chatModel: DefaultChatModel, maxTokens: DefaultMaxTokens}

	out, err := client.GenerateReply(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got %q", out)
	}
	if len(chat.params.Messages) != 2 {
		t.Errorf("expected system+user messages, got %d", len(chat.params.Messages))
	}
}

func TestGenerateReplyServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, chatModel: DefaultChatModel, maxTokens: DefaultMaxTokens}
	_, err := client.GenerateReply(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateReplyNoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}, chatModel: DefaultChatModel, maxTokens: DefaultMaxTokens}
	_, err := client.GenerateReply(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	// Responses may arrive out of order; vectors must land at their index.
	resp := &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{
			{Index: 1, Embedding: []float64{0, 1}},
			{Index: 0, Embedding: []float64{1, 0}},
		},
	}
	client := &Client{embeddings: &mockEmbeddingService{resp: resp}, embeddingModel: DefaultEmbeddingModel}

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors not placed by index: %v", vectors)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	resp := &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{{Index: 0, Embedding: []float64{1}}},
	}
	client := &Client{embeddings: &mockEmbeddingService{resp: resp}, embeddingModel: DefaultEmbeddingModel}
	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, ErrNoEmbeddingReturned) {
		t.Errorf("expected ErrNoEmbeddingReturned, got %v", err)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	client := &Client{embeddings: &mockEmbeddingService{}, embeddingModel: DefaultEmbeddingModel}
	vectors, err := client.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestNewClientNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.chatModel != DefaultChatModel {
		t.Errorf("expected default chat model, got %q", client.chatModel)
	}
	if client.embeddingModel != DefaultEmbeddingModel {
		t.Errorf("expected default embedding model, got %q", client.embeddingModel)
	}
	if client.maxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", client.maxTokens)
	}
}
