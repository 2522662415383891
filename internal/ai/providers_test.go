package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellarlinkco/tgvault/internal/config"
)

func TestOpenAIRequestShape(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"structured"}}]}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider(config.ProviderSettings{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client())
	result, err := p.Complete(context.Background(), Request{Content: "hello", Prompt: "process this"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if result != "structured" {
		t.Errorf("result = %q", result)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["model"] != config.DefaultOpenAIModel {
		t.Errorf("model = %v, want %s", gotBody["model"], config.DefaultOpenAIModel)
	}
	if gotBody["temperature"] != config.DefaultTemperature {
		t.Errorf("temperature = %v", gotBody["temperature"])
	}
	if gotBody["max_tokens"] != float64(config.DefaultMaxTokens) {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
	messages := gotBody["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	system := messages[0].(map[string]any)
	if system["role"] != "system" || system["content"] != "process this" {
		t.Errorf("system message = %v", system)
	}
}

func TestOpenAIVisionRequest(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"a cat"}}]}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider(config.ProviderSettings{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o-mini"}, srv.Client())
	_, err := p.Complete(context.Background(), Request{
		Content: "what is this",
		Prompt:  "describe",
		Image:   &ImagePayload{MimeType: "image/png", Base64: "QUJD"},
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	// The mini model has no vision support, so the request upgrades.
	if gotBody["model"] != "gpt-4o" {
		t.Errorf("vision model = %v, want gpt-4o", gotBody["model"])
	}
	user := gotBody["messages"].([]any)[1].(map[string]any)
	parts := user["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("content parts = %d, want 2", len(parts))
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	if img["url"] != "data:image/png;base64,QUJD" {
		t.Errorf("image url = %v", img["url"])
	}
	if img["detail"] != "high" {
		t.Errorf("detail = %v", img["detail"])
	}
}

func TestOpenAIErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrKind
	}{
		{"auth", 401, `{"error":{"type":"invalid_api_key","message":"bad"}}`, KindAuth},
		{"quota", 429, `{"error":{"type":"insufficient_quota","message":"billing"}}`, KindQuota},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, KindTransient},
		{"server", 500, ``, KindTransient},
		{"bad request", 400, `{"error":{"message":"bad request"}}`, KindPermanent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			}))
			defer srv.Close()

			p := newOpenAIProvider(config.ProviderSettings{APIKey: "k", BaseURL: srv.URL}, srv.Client())
			_, err := p.Complete(context.Background(), Request{Content: "x", Prompt: "y"})
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want ProviderError", err)
			}
			if pe.Kind != c.kind {
				t.Errorf("kind = %v, want %v", pe.Kind, c.kind)
			}
		})
	}
}

func TestOpenAIEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	p := newOpenAIProvider(config.ProviderSettings{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	_, err := p.Complete(context.Background(), Request{Content: "x", Prompt: "y"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Kind != KindEmpty {
		t.Fatalf("err = %v, want empty-response ProviderError", err)
	}
}

func TestClaudeRequestShape(t *testing.T) {
	var gotKey, gotVersion string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"content":[{"type":"text","text":"done"}]}`))
	}))
	defer srv.Close()

	p := newClaudeProvider(config.ProviderSettings{APIKey: "ck", BaseURL: srv.URL}, srv.Client())
	result, err := p.Complete(context.Background(), Request{Content: "note text", Prompt: "structure it"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if result != "done" {
		t.Errorf("result = %q", result)
	}
	if gotKey != "ck" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotBody["model"] != config.DefaultClaudeModel {
		t.Errorf("model = %v", gotBody["model"])
	}
	msg := gotBody["messages"].([]any)[0].(map[string]any)
	if msg["content"] != "structure it\n\nnote text" {
		t.Errorf("prompt and content not joined: %q", msg["content"])
	}
}

func TestGeminiRequestShape(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"summary"}]}}]}`))
	}))
	defer srv.Close()

	p := newGeminiProvider(config.ProviderSettings{APIKey: "gk", BaseURL: srv.URL}, srv.Client())
	result, err := p.Complete(context.Background(), Request{Content: "voice note", Prompt: "transcribe"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if result != "summary" {
		t.Errorf("result = %q", result)
	}
	if gotPath != "/models/"+config.DefaultGeminiModel+":generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "gk" {
		t.Errorf("key = %q", gotKey)
	}
	gen := gotBody["generationConfig"].(map[string]any)
	if gen["temperature"] != config.DefaultTemperature {
		t.Errorf("temperature = %v", gen["temperature"])
	}
	if gen["maxOutputTokens"] != float64(config.DefaultMaxTokens) {
		t.Errorf("maxOutputTokens = %v", gen["maxOutputTokens"])
	}
}

func TestGeminiVisionParts(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a dog"}]}}]}`))
	}))
	defer srv.Close()

	p := newGeminiProvider(config.ProviderSettings{APIKey: "gk", BaseURL: srv.URL}, srv.Client())
	_, err := p.Complete(context.Background(), Request{
		Prompt: "describe",
		Image:  &ImagePayload{MimeType: "image/jpeg", Base64: "Zm9v"},
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	parts := gotBody["contents"].([]any)[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0].(map[string]any)["text"] != "describe\n\nAnalyze this image" {
		t.Errorf("text part = %v", parts[0])
	}
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/jpeg" || inline["data"] != "Zm9v" {
		t.Errorf("inlineData = %v", inline)
	}
}

func TestRegistryResolveDefaultsToOpenAI(t *testing.T) {
	client := &http.Client{}
	r := newRegistry(
		newOpenAIProvider(config.ProviderSettings{}, client),
		newClaudeProvider(config.ProviderSettings{}, client),
		newGeminiProvider(config.ProviderSettings{}, client),
	)
	if got := r.resolve("claude").Name(); got != "claude" {
		t.Errorf("resolve(claude) = %q", got)
	}
	if got := r.resolve("unknown-vendor").Name(); got != "openai" {
		t.Errorf("resolve(unknown) = %q, want openai", got)
	}
}
