package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stellarlinkco/tgvault/internal/bus"
	"github.com/stellarlinkco/tgvault/internal/config"
)

// Attachment points at a downloaded file that may accompany a request.
type Attachment struct {
	Path     string
	MimeType string
}

// Orchestrator selects the active provider and runs content through it under
// the retry/backoff/timeout policy. Every public entry point degrades to ""
// on failure; callers fall back to unprocessed content.
type Orchestrator struct {
	cfg      config.AIConfig
	registry *registry
	composer *PromptComposer
	retry    *retryPolicy
	log      zerolog.Logger

	// readFile is swapped in tests
	readFile func(string) ([]byte, error)
}

func NewOrchestrator(cfg config.AIConfig, log zerolog.Logger) *Orchestrator {
	client := defaultHTTPClient()
	return &Orchestrator{
		cfg: cfg,
		registry: newRegistry(
			newOpenAIProvider(cfg.OpenAI, client),
			newClaudeProvider(cfg.Claude, client),
			newGeminiProvider(cfg.Gemini, client),
		),
		composer: NewPromptComposer(cfg.Prompts),
		retry: newRetryPolicy(
			cfg.RetryAttempts,
			time.Duration(cfg.RetryDelayMs)*time.Millisecond,
			time.Duration(cfg.TimeoutMs)*time.Millisecond,
		),
		log:      log,
		readFile: os.ReadFile,
	}
}

// Process runs content through the active provider with the final
// hierarchical prompt for its content type. Returns "" when AI is disabled,
// the content type is toggled off, or processing failed.
func (o *Orchestrator) Process(ctx context.Context, content string, ct bus.ContentType, att *Attachment) string {
	if !o.cfg.Enabled || !o.cfg.Process.Enabled(string(ct)) {
		return ""
	}
	prompt := o.composer.Compose(ct, true)
	return o.complete(ctx, content, prompt, ct, o.visionPayload(ct, att))
}

// ProcessIntermediate is Process without the general prompt, used for the
// first leg of mixed-content orchestration.
func (o *Orchestrator) ProcessIntermediate(ctx context.Context, content string, ct bus.ContentType, att *Attachment) string {
	if !o.cfg.Enabled || !o.cfg.Process.Enabled(string(ct)) {
		return ""
	}
	prompt := o.composer.Compose(ct, false)
	return o.complete(ctx, content, prompt, ct, o.visionPayload(ct, att))
}

// ProcessWithPrompt runs content with a caller-supplied prompt, text-only.
// The classifier and custom-parameter extraction go through here.
func (o *Orchestrator) ProcessWithPrompt(ctx context.Context, content, prompt string) string {
	if !o.cfg.Enabled {
		return ""
	}
	return o.complete(ctx, content, prompt, bus.ContentText, nil)
}

// ProcessMixed handles an attachment with accompanying text using at most
// two provider calls: an intermediate call analyzing the attachment alone,
// then one final call combining the analysis with the message text. If the
// final call fails the intermediate result is returned as-is rather than
// spending a third request.
func (o *Orchestrator) ProcessMixed(ctx context.Context, fileContent string, fileType bus.ContentType, messageText string, att *Attachment) string {
	if !o.cfg.Enabled {
		return ""
	}

	fileAnalysis := o.ProcessIntermediate(ctx, fileContent, fileType, att)

	if messageText != "" && o.cfg.Process.Text {
		combined := messageText
		if fileAnalysis != "" {
			combined = fmt.Sprintf("**%s Analysis:**\n%s\n\n**Message Text:**\n%s",
				fileTypeDisplayName(fileType), fileAnalysis, messageText)
		}
		finalPrompt := o.composer.Compose(bus.ContentText, true)
		if result := o.complete(ctx, combined, finalPrompt, fileType, nil); result != "" {
			return result
		}
		if fileAnalysis != "" {
			return fileAnalysis
		}
		return messageText
	}

	if fileAnalysis != "" {
		if o.cfg.Prompts.General != "" {
			if result := o.complete(ctx, fileAnalysis, o.cfg.Prompts.General, fileType, nil); result != "" {
				return result
			}
		}
		return fileAnalysis
	}

	return messageText
}

// complete is the shared request path: key check, retry loop, failure
// logging. Empty prompts are a no-op, as is empty content unless an image
// payload makes the request meaningful on its own.
func (o *Orchestrator) complete(ctx context.Context, content, prompt string, ct bus.ContentType, img *ImagePayload) string {
	if prompt == "" || (strings.TrimSpace(content) == "" && img == nil) {
		return ""
	}

	provider := o.registry.resolve(o.cfg.Provider)
	if o.cfg.ProviderFor(provider.Name()).APIKey == "" {
		err := configError(provider.Name())
		o.log.Error().
			Str("provider", provider.Name()).
			Str("content_type", string(ct)).
			Msg(err.Message)
		return ""
	}

	req := Request{Content: content, Prompt: prompt, Image: img}
	result, attempts, err := o.retry.do(ctx, func(ctx context.Context) (string, error) {
		return provider.Complete(ctx, req)
	})
	if err != nil {
		o.log.Error().
			Str("provider", provider.Name()).
			Str("content_type", string(ct)).
			Int("attempts", attempts).
			Err(err).
			Msg("ai processing failed, content saved without enrichment")
		return ""
	}
	return result
}

// visionPayload loads the image for a vision-capable request. Only photo
// content on a vision-enabled provider qualifies; Claude is text-only. A
// failed read degrades to a text-only request.
func (o *Orchestrator) visionPayload(ct bus.ContentType, att *Attachment) *ImagePayload {
	if ct != bus.ContentPhoto || att == nil || att.Path == "" {
		return nil
	}
	name := o.registry.resolve(o.cfg.Provider).Name()
	if name == "claude" || !o.cfg.ProviderFor(name).VisionEnabled {
		return nil
	}

	data, err := o.readFile(att.Path)
	if err != nil {
		o.log.Warn().Str("path", att.Path).Err(err).Msg("image read failed, falling back to text-only request")
		return nil
	}
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return &ImagePayload{
		MimeType: mimeType,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}
}

var paramLinePattern = regexp.MustCompile(`(?i)^\s*([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.+)$`)

// GenerateParams asks the provider for named template parameters (e.g. a
// generated title) in one request and parses "name: value" lines out of the
// answer. Missing or failed parameters fall back to "param_<name>".
func (o *Orchestrator) GenerateParams(ctx context.Context, content string, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = "param_" + name
	}

	var defined []string
	for _, name := range names {
		if _, ok := o.cfg.CustomParameters[name]; ok {
			defined = append(defined, name)
		}
	}
	if !o.cfg.Enabled || len(defined) == 0 {
		return out
	}

	var sb strings.Builder
	sb.WriteString("Analyze the following text and create parameters for note organization.\n\n")
	sb.WriteString("Text: " + content + "\n\n")
	sb.WriteString("Create the following parameters:\n")
	for _, name := range defined {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, o.cfg.CustomParameters[name]))
	}
	sb.WriteString("\nReturn result in format:\n")
	for _, name := range defined {
		sb.WriteString(name + ": [value]\n")
	}
	sb.WriteString("\nUse English language. Be concise and accurate.")

	response := o.ProcessWithPrompt(ctx, content, sb.String())
	if response == "" {
		return out
	}

	wanted := make(map[string]bool, len(defined))
	for _, name := range defined {
		wanted[name] = true
	}
	for _, line := range strings.Split(response, "\n") {
		m := paramLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		if !wanted[name] {
			continue
		}
		value := strings.TrimSpace(m[2])
		value = strings.TrimPrefix(value, "[")
		value = strings.TrimSuffix(value, "]")
		if value != "" {
			out[name] = value
		}
	}
	return out
}

func fileTypeDisplayName(ct bus.ContentType) string {
	switch ct {
	case bus.ContentPhoto:
		return "image"
	case bus.ContentVideo:
		return "video"
	case bus.ContentVoice:
		return "voice message"
	case bus.ContentAudio:
		return "audio"
	case bus.ContentDocument:
		return "document"
	default:
		return "file"
	}
}
