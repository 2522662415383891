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

const (
	claudeEndpoint   = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// claudeProvider is text-only: vision requests fall back to the caption
// before they reach Complete.
type claudeProvider struct {
	settings config.ProviderSettings
	client   *http.Client
}

func newClaudeProvider(settings config.ProviderSettings, client *http.Client) *claudeProvider {
	if settings.Model == "" {
		settings.Model = config.DefaultClaudeModel
	}
	return &claudeProvider{settings: settings, client: client}
}

func (p *claudeProvider) Name() string { return "claude" }

func (p *claudeProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := map[string]any{
		"model":      p.settings.Model,
		"max_tokens": maxTokensOrDefault(p.settings.MaxTokens),
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt + "\n\n" + req.Content},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal claude request: %w", err)
	}

	endpoint := claudeEndpoint
	if p.settings.BaseURL != "" {
		endpoint = strings.TrimRight(p.settings.BaseURL, "/") + "/v1/messages"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create claude request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.settings.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send claude request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read claude response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeClaudeError(resp.StatusCode, respBody)
	}

	var decoded struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode claude response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return "", emptyResponseError("claude")
	}
	result := decoded.Content[0].Text
	if strings.TrimSpace(result) == "" {
		return "", emptyResponseError("claude")
	}
	return result, nil
}

func decodeClaudeError(status int, body []byte) error {
	var decoded struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := fmt.Sprintf("HTTP %d", status)
	var errType string
	if err := json.Unmarshal(body, &decoded); err == nil {
		errType = decoded.Error.Type
		if decoded.Error.Message != "" {
			message = decoded.Error.Message
		} else if errType != "" {
			message = errType
		}
	} else if len(body) > 0 {
		message = strings.TrimSpace(string(body))
	}
	return classifyHTTPError("claude", status, errType, "", message)
}
