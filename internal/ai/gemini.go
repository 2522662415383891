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

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiProvider struct {
	settings config.ProviderSettings
	client   *http.Client
}

func newGeminiProvider(settings config.ProviderSettings, client *http.Client) *geminiProvider {
	if settings.Model == "" {
		settings.Model = config.DefaultGeminiModel
	}
	return &geminiProvider{settings: settings, client: client}
}

func (p *geminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	text := req.Prompt + "\n\n" + req.Content
	if req.Image != nil && req.Content == "" {
		text = req.Prompt + "\n\n" + "Analyze this image"
	}
	parts := []geminiPart{{Text: text}}
	if req.Image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Image.MimeType,
			Data:     req.Image.Base64,
		}})
	}

	body := map[string]any{
		"contents": []map[string]any{{"parts": parts}},
		"generationConfig": map[string]any{
			"temperature":     temperatureOrDefault(p.settings.Temperature),
			"maxOutputTokens": maxTokensOrDefault(p.settings.MaxTokens),
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	base := geminiBaseURL
	if p.settings.BaseURL != "" {
		base = strings.TrimRight(p.settings.BaseURL, "/")
	}
	// API key travels as a query parameter per vendor convention.
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, p.settings.Model, p.settings.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeGeminiError(resp.StatusCode, respBody)
	}

	var decoded struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", emptyResponseError("gemini")
	}
	result := decoded.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(result) == "" {
		return "", emptyResponseError("gemini")
	}
	return result, nil
}

func decodeGeminiError(status int, body []byte) error {
	var decoded struct {
		Error struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := fmt.Sprintf("HTTP %d", status)
	if err := json.Unmarshal(body, &decoded); err == nil {
		if decoded.Error.Message != "" {
			message = decoded.Error.Message
		} else if decoded.Error.Status != "" {
			message = decoded.Error.Status
		}
	} else if len(body) > 0 {
		message = strings.TrimSpace(string(body))
	}
	return classifyHTTPError("gemini", status, "", "", message)
}
