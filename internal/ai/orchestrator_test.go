package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stellarlinkco/tgvault/internal/bus"
	"github.com/stellarlinkco/tgvault/internal/config"
)

func testAIConfig(baseURL string) config.AIConfig {
	return config.AIConfig{
		Enabled:       true,
		Provider:      "openai",
		OpenAI:        config.ProviderSettings{APIKey: "sk-test", BaseURL: baseURL},
		RetryAttempts: 1,
		RetryDelayMs:  1,
		TimeoutMs:     5000,
		Process: config.ProcessConfig{
			Text: true, Voice: true, Photo: true, Video: true, Audio: true, Document: true,
		},
	}
}

func openAIStub(t *testing.T, calls *atomic.Int64, reply func(n int64) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		status, content := reply(n)
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"choices":[{"message":{"content":"` + content + `"}}]}`))
		} else {
			w.Write([]byte(`{"error":{"message":"` + content + `"}}`))
		}
	}))
}

func TestProcessSuccess(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(int64) (int, string) { return http.StatusOK, "enriched" })
	defer srv.Close()

	o := NewOrchestrator(testAIConfig(srv.URL), zerolog.Nop())
	if got := o.Process(context.Background(), "raw text", bus.ContentText, nil); got != "enriched" {
		t.Errorf("Process = %q, want enriched", got)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestProcessDisabled(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(int64) (int, string) { return http.StatusOK, "x" })
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.Enabled = false
	o := NewOrchestrator(cfg, zerolog.Nop())
	if got := o.Process(context.Background(), "raw", bus.ContentText, nil); got != "" {
		t.Errorf("Process = %q, want empty", got)
	}
	if calls.Load() != 0 {
		t.Errorf("disabled orchestrator made %d calls", calls.Load())
	}
}

func TestProcessContentTypeToggle(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(int64) (int, string) { return http.StatusOK, "x" })
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.Process.Voice = false
	o := NewOrchestrator(cfg, zerolog.Nop())
	if got := o.Process(context.Background(), "transcript", bus.ContentVoice, nil); got != "" {
		t.Errorf("Process = %q, want empty for toggled-off type", got)
	}
	if calls.Load() != 0 {
		t.Errorf("toggled-off type made %d calls", calls.Load())
	}
}

func TestProcessMissingKeyMakesNoAttempt(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(int64) (int, string) { return http.StatusOK, "x" })
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.OpenAI.APIKey = ""
	o := NewOrchestrator(cfg, zerolog.Nop())
	if got := o.Process(context.Background(), "raw", bus.ContentText, nil); got != "" {
		t.Errorf("Process = %q, want empty", got)
	}
	if calls.Load() != 0 {
		t.Errorf("missing key made %d calls", calls.Load())
	}
}

func TestProcessFailureDegradesToEmpty(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(int64) (int, string) { return http.StatusBadRequest, "bad request" })
	defer srv.Close()

	o := NewOrchestrator(testAIConfig(srv.URL), zerolog.Nop())
	if got := o.Process(context.Background(), "raw", bus.ContentText, nil); got != "" {
		t.Errorf("Process = %q, want empty on failure", got)
	}
}

func TestProcessMixedTwoCalls(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(n int64) (int, string) {
		if n == 1 {
			return http.StatusOK, "voice analysis"
		}
		return http.StatusOK, "final note"
	})
	defer srv.Close()

	o := NewOrchestrator(testAIConfig(srv.URL), zerolog.Nop())
	got := o.ProcessMixed(context.Background(), "transcript", bus.ContentVoice, "my caption", nil)
	if got != "final note" {
		t.Errorf("ProcessMixed = %q, want final note", got)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want exactly 2", calls.Load())
	}
}

func TestProcessMixedFinalFailureReturnsAnalysis(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(n int64) (int, string) {
		if n == 1 {
			return http.StatusOK, "voice analysis"
		}
		return http.StatusBadRequest, "bad request"
	})
	defer srv.Close()

	o := NewOrchestrator(testAIConfig(srv.URL), zerolog.Nop())
	got := o.ProcessMixed(context.Background(), "transcript", bus.ContentVoice, "my caption", nil)
	if got != "voice analysis" {
		t.Errorf("ProcessMixed = %q, want the intermediate analysis", got)
	}
	// No third request after the final call fails.
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want exactly 2", calls.Load())
	}
}

func TestProcessMixedNoTextReturnsAnalysis(t *testing.T) {
	var calls atomic.Int64
	srv := openAIStub(t, &calls, func(int64) (int, string) { return http.StatusOK, "doc analysis" })
	defer srv.Close()

	o := NewOrchestrator(testAIConfig(srv.URL), zerolog.Nop())
	got := o.ProcessMixed(context.Background(), "doc text", bus.ContentDocument, "", nil)
	if got != "doc analysis" {
		t.Errorf("ProcessMixed = %q", got)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGenerateParams(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[{"message":{"content":"title: [Grocery Plan]\nignored: [x]"}}]}`))
	}))
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.CustomParameters = map[string]string{"title": "a short note title"}
	o := NewOrchestrator(cfg, zerolog.Nop())

	params := o.GenerateParams(context.Background(), "buy milk and eggs", []string{"title", "undefined"})
	if params["title"] != "Grocery Plan" {
		t.Errorf("title = %q", params["title"])
	}
	if params["undefined"] != "param_undefined" {
		t.Errorf("undefined param = %q, want fallback", params["undefined"])
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGenerateParamsFailureFallsBack(t *testing.T) {
	srv := openAIStub(t, &atomic.Int64{}, func(int64) (int, string) { return http.StatusBadRequest, "nope" })
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.CustomParameters = map[string]string{"title": "a title"}
	o := NewOrchestrator(cfg, zerolog.Nop())

	params := o.GenerateParams(context.Background(), "content", []string{"title"})
	if params["title"] != "param_title" {
		t.Errorf("title = %q, want fallback", params["title"])
	}
}

func TestVisionPayload(t *testing.T) {
	cfg := testAIConfig("http://unused")
	cfg.OpenAI.VisionEnabled = true
	o := NewOrchestrator(cfg, zerolog.Nop())
	o.readFile = func(string) ([]byte, error) { return []byte("ABC"), nil }

	img := o.visionPayload(bus.ContentPhoto, &Attachment{Path: "/tmp/p.jpg", MimeType: "image/jpeg"})
	if img == nil {
		t.Fatal("expected payload")
	}
	if img.Base64 != "QUJD" || img.MimeType != "image/jpeg" {
		t.Errorf("payload = %+v", img)
	}

	// Non-photo content never carries an image.
	if o.visionPayload(bus.ContentDocument, &Attachment{Path: "/tmp/d.pdf"}) != nil {
		t.Error("document produced a vision payload")
	}
}

func TestVisionPayloadClaudeTextOnly(t *testing.T) {
	cfg := testAIConfig("http://unused")
	cfg.Provider = "claude"
	cfg.Claude = config.ProviderSettings{APIKey: "ck", VisionEnabled: true}
	o := NewOrchestrator(cfg, zerolog.Nop())
	o.readFile = func(string) ([]byte, error) { return []byte("ABC"), nil }

	if o.visionPayload(bus.ContentPhoto, &Attachment{Path: "/tmp/p.jpg"}) != nil {
		t.Error("claude produced a vision payload")
	}
}
