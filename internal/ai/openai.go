package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/stellarlinkco/tgvault/internal/config"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

type openAIProvider struct {
	settings config.ProviderSettings
	client   *http.Client
}

func newOpenAIProvider(settings config.ProviderSettings, client *http.Client) *openAIProvider {
	if settings.Model == "" {
		settings.Model = config.DefaultOpenAIModel
	}
	return &openAIProvider{settings: settings, client: client}
}

func (p *openAIProvider) Name() string { return "openai" }

// openAIContentPart is one element of a multimodal user message.
type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := p.settings.Model
	var messages []openAIMessage

	if req.Image != nil {
		// Vision needs a model with image support.
		if strings.Contains(model, "mini") {
			model = "gpt-4o"
		}
		text := req.Content
		if text == "" {
			text = "Analyze this image"
		}
		messages = []openAIMessage{
			{Role: "system", Content: req.Prompt},
			{Role: "user", Content: []openAIContentPart{
				{Type: "text", Text: text},
				{Type: "image_url", ImageURL: &openAIImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", req.Image.MimeType, req.Image.Base64),
					Detail: "high",
				}},
			}},
		}
	} else {
		messages = []openAIMessage{
			{Role: "system", Content: req.Prompt},
			{Role: "user", Content: req.Content},
		}
	}

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperatureOrDefault(p.settings.Temperature),
		"max_tokens":  maxTokensOrDefault(p.settings.MaxTokens),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	endpoint := openAIEndpoint
	if p.settings.BaseURL != "" {
		endpoint = strings.TrimRight(p.settings.BaseURL, "/") + "/v1/chat/completions"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.settings.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send openai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeOpenAIError(resp.StatusCode, respBody)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", emptyResponseError("openai")
	}
	result := decoded.Choices[0].Message.Content
	if strings.TrimSpace(result) == "" {
		return "", emptyResponseError("openai")
	}
	return result, nil
}

func decodeOpenAIError(status int, body []byte) error {
	var decoded struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := fmt.Sprintf("HTTP %d", status)
	var errType, errCode string
	if err := json.Unmarshal(body, &decoded); err == nil {
		errType = decoded.Error.Type
		errCode = decoded.Error.Code
		if decoded.Error.Message != "" {
			message = decoded.Error.Message
		} else if errType != "" {
			message = errType
		}
	} else if len(body) > 0 {
		message = strings.TrimSpace(string(body))
	}
	return classifyHTTPError("openai", status, errType, errCode, message)
}

func temperatureOrDefault(t *float64) float64 {
	if t != nil {
		return *t
	}
	return config.DefaultTemperature
}

func maxTokensOrDefault(n int) int {
	if n > 0 {
		return n
	}
	return config.DefaultMaxTokens
}
