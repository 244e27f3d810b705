package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
	calls  int
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.calls++
	m.params = params
	return m.resp, m.err
}

func completionWith(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestComplete_Success(t *testing.T) {
	mock := &mockChatService{resp: completionWith("Hello World #hello")}
	client := &Client{chat: mock, model: "test-model"}
	out, err := client.Complete(context.Background(), "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World #hello" {
		t.Errorf("expected 'Hello World #hello', got '%s'", out)
	}
	if mock.calls != 1 {
		t.Errorf("expected exactly one provider call, got %d", mock.calls)
	}
	if mock.params.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", mock.params.Model)
	}
	if len(mock.params.Messages) != 1 {
		t.Fatalf("expected a single user message, got %d", len(mock.params.Messages))
	}
	if mock.params.Messages[0].OfUser == nil {
		t.Error("expected the message to be a user message")
	}
}

func TestComplete_SamplingOptions(t *testing.T) {
	mock := &mockChatService{resp: completionWith("ok")}
	client := &Client{chat: mock, model: "m"}
	if _, err := client.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.params.Temperature.Valid() || mock.params.MaxTokens.Valid() {
		t.Error("expected provider defaults when unset")
	}

	var cfg Opts
	for _, o := range []Option{WithTemperature(0.7), WithMaxTokens(280)} {
		o(&cfg)
	}
	client = &Client{chat: mock, model: "m", temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
	if _, err := client.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.params.Temperature.Value != 0.7 || mock.params.MaxTokens.Value != 280 {
		t.Errorf("expected temperature 0.7 and max tokens 280, got %v and %v", mock.params.Temperature, mock.params.MaxTokens)
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.Complete(context.Background(), "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.Complete(context.Background(), "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("   ")}}
	_, err := client.Complete(context.Background(), "usr")
	if err != ErrEmptyCompletion {
		t.Errorf("expected empty completion error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	_, err := NewClient()
	if err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("custom/model"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.Model() != "custom/model" {
		t.Errorf("expected model custom/model, got %s", cli.Model())
	}
}

func TestNewClient_EnvKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	cli, err := NewClient()
	if err != nil {
		t.Fatalf("expected env key to be picked up, got %v", err)
	}
	if cli.Model() != DefaultModel {
		t.Errorf("expected default model, got %s", cli.Model())
	}
}
