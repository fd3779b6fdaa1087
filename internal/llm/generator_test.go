package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"reblurb-gateway/pkg/logging/logging"
)

type fakeClient struct {
	resp *ChatResponse
	err  error
	got  *ChatRequest
}

func (f *fakeClient) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestChatGeneratorBuildsMessages(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{resp: &ChatResponse{Choices: []ChatChoice{{Message: ChatMessage{Role: RoleAssistant, Content: "summary"}}}}}
	gen := &ChatGenerator{Client: fc, Model: "m", MaxTokens: 250}

	out, err := gen.Generate(context.Background(), "style", "a|b")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "summary" {
		t.Fatalf("unexpected summary %q", out)
	}
	if fc.got.Model != "m" || fc.got.MaxTokens != 250 {
		t.Fatalf("unexpected request: %#v", fc.got)
	}
	if len(fc.got.Messages) != 2 ||
		fc.got.Messages[0].Role != RoleSystem || fc.got.Messages[0].Content != "style" ||
		fc.got.Messages[1].Role != RoleUser || fc.got.Messages[1].Content != "a|b" {
		t.Fatalf("unexpected messages: %#v", fc.got.Messages)
	}
}

func TestChatGeneratorErrors(t *testing.T) {
	t.Parallel()

	gen := &ChatGenerator{Client: &fakeClient{err: errors.New("boom")}, Model: "m"}
	if _, err := gen.Generate(context.Background(), "s", "c"); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}

	gen = &ChatGenerator{Client: &fakeClient{resp: &ChatResponse{}}, Model: "m"}
	if _, err := gen.Generate(context.Background(), "s", "c"); !errors.Is(err, ErrGenerationEmpty) {
		t.Fatalf("no choices: expected ErrGenerationEmpty, got %v", err)
	}

	gen = &ChatGenerator{Client: &fakeClient{resp: &ChatResponse{Choices: []ChatChoice{{Message: ChatMessage{Content: "  \n"}}}}}, Model: "m"}
	if _, err := gen.Generate(context.Background(), "s", "c"); !errors.Is(err, ErrGenerationEmpty) {
		t.Fatalf("blank text: expected ErrGenerationEmpty, got %v", err)
	}
}

func TestOpenAIGenerator(t *testing.T) {
	t.Parallel()

	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected Authorization header: %s", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-3.5-turbo-0125","choices":[{"index":0,"message":{"role":"assistant","content":"Solid build."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{
		APIKey:    "sk-test",
		BaseURL:   srv.URL + "/v1",
		Model:     "gpt-3.5-turbo-0125",
		MaxTokens: 250,
	})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}

	out, err := gen.Generate(context.Background(), "style", "Great product!|Works well.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Solid build." {
		t.Fatalf("unexpected summary %q", out)
	}
	if got.Model != "gpt-3.5-turbo-0125" || got.MaxTokens != 250 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Great product!|Works well." {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIGeneratorUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator: %v", err)
	}
	if _, err := gen.Generate(context.Background(), "s", "c"); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestAnthropicGenerator(t *testing.T) {
	t.Parallel()

	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",` +
			`"content":[{"type":"text","text":"Sturdy "},{"type":"text","text":"and quiet."}],` +
			`"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer srv.Close()

	gen, err := NewAnthropicGenerator(AnthropicConfig{
		APIKey:  "ak-test",
		BaseURL: srv.URL,
		Model:   "claude-3-5-haiku-latest",
	})
	if err != nil {
		t.Fatalf("NewAnthropicGenerator: %v", err)
	}

	out, err := gen.Generate(context.Background(), "style", "content")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Sturdy and quiet." {
		t.Fatalf("unexpected summary %q", out)
	}
	if got.MaxTokens != 250 {
		t.Fatalf("expected default max_tokens 250, got %d", got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].Text != "style" {
		t.Fatalf("style prompt not sent as system: %+v", got.System)
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	t.Parallel()

	cases := []GeneratorConfig{
		{Provider: ProviderOpenAI, Model: "m"},
		{Provider: ProviderAnthropic, Model: "m"},
		{Provider: ProviderCompatible, Model: "m", APIKey: "k"},
		{Provider: "carrier-pigeon", Model: "m", APIKey: "k"},
	}
	for _, cfg := range cases {
		gen, err := NewGenerator(cfg, zap.NewNop())
		if err == nil {
			t.Fatalf("%s: expected error", cfg.Provider)
		}
		if gen != nil {
			t.Fatalf("%s: expected nil generator on error", cfg.Provider)
		}
	}
}

func TestNewGeneratorCompatible(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"fine"}}]}`))
	}))
	defer srv.Close()

	gen, err := NewGenerator(GeneratorConfig{
		Provider: ProviderCompatible,
		Model:    "local",
		APIKey:   "k",
		BaseURL:  srv.URL,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	closer, ok := gen.(interface{ Close() error })
	if !ok {
		t.Fatalf("compatible generator should implement Close")
	}
	defer closer.Close()

	out, err := gen.Generate(context.Background(), "s", "c")
	if err != nil || out != "fine" {
		t.Fatalf("unexpected result %q, %v", out, err)
	}
}

func TestLoggingGenerator(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	ctx := logging.WithLogger(context.Background(), zap.New(core))

	gen := NewLoggingGenerator(GeneratorFunc(func(ctx context.Context, stylePrompt, content string) (string, error) {
		return "", ErrGenerationEmpty
	}), ProviderOpenAI, "m")

	if _, err := gen.Generate(ctx, "s", "héllo"); !errors.Is(err, ErrGenerationEmpty) {
		t.Fatalf("error not passed through: %v", err)
	}

	entries := logs.FilterMessage("summary_generate").All()
	if len(entries) != 1 {
		t.Fatalf("expected one summary_generate entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["generation_result"] != "empty" {
		t.Fatalf("unexpected generation_result: %v", fields["generation_result"])
	}
	if fields["content_chars"] != int64(5) {
		t.Fatalf("content_chars should count runes, got %v", fields["content_chars"])
	}
}
