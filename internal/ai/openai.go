package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sakif/chronicle/internal/apperror"
)

const (
	systemPrompt = "You are a supportive journaling companion. Keep responses brief and practical."
	temperature  = 0.7

	// maxResponseBytes caps how much of an upstream response is read.
	maxResponseBytes = 1 << 20

	upstreamFailed = "OpenAI request failed"
)

// OpenAI calls the chat completions endpoint of an OpenAI-compatible API.
type OpenAI struct {
	client  *http.Client
	model   string
	baseURL string
	logger  *slog.Logger
}

// NewOpenAI builds a client whose transport attaches cfg.APIKey as a
// bearer token.
func NewOpenAI(cfg Config) *OpenAI {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.APIKey,
		TokenType:   "Bearer",
	}))

	client.Timeout = cfg.Timeout
	if client.Timeout <= 0 {
		client.Timeout = DefaultTimeout
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &OpenAI{client: client, model: model, baseURL: baseURL, logger: cfg.logger()}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt and returns the trimmed content of the first
// choice. Every upstream failure is an apperror Gateway error; for a
// non-2xx response its Data is the decoded upstream payload.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("ai: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Error("ai: upstream request failed", "error", err)
		return "", apperror.Gateway(upstreamFailed, nil)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		o.logger.Error("ai: reading upstream response", "error", err, "status", resp.StatusCode)
		return "", apperror.Gateway(upstreamFailed, nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, message := upstreamError(raw)
		o.logger.Warn("ai: upstream returned an error",
			"status", resp.StatusCode,
			"message", message,
		)
		return "", apperror.Gateway(message, payload)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		o.logger.Error("ai: decoding upstream response", "error", err)
		return "", apperror.Gateway(upstreamFailed, nil)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// upstreamError decodes an error body. The message is error.message when
// present, else the generic failure text. A body that is not JSON yields a
// nil payload.
func upstreamError(raw []byte) (payload any, message string) {
	message = upstreamFailed
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, message
	}
	if m, ok := payload.(map[string]any); ok {
		if e, ok := m["error"].(map[string]any); ok {
			if s, ok := e["message"].(string); ok && s != "" {
				message = s
			}
		}
	}
	return payload, message
}
