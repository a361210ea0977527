// Package openai adapts the OpenAI chat completions API to the text
// generator contract.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

type Options struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

type Client struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	onWarning    func(reason, detail string)
}

const defaultTimeout = 60 * time.Second

const defaultModel = "gpt-4o-mini"

var modelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
	"gpt-4.1-mini":  "gpt-4.1-mini",
}

var modelAliases = map[string]string{
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
	"gpt4.1-mini":            "gpt-4.1-mini",
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	c := &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		onWarning:    opts.OnWarning,
	}
	c.model = c.normalize(opts.Model)
	return c, nil
}

// Model returns the default chat model.
func (c *Client) Model() string {
	return c.model
}

// GenerateText sends the system and user prompt as a single chat completion.
func (c *Client) GenerateText(ctx context.Context, req adaptor.Request) (*adaptor.TextResult, error) {
	model := c.model
	if strings.TrimSpace(req.ModelID) != "" {
		model = c.normalize(req.ModelID)
	}
	payload := chatRequest{
		Model:       model,
		Temperature: req.Options.Temperature,
	}
	if sys := strings.TrimSpace(req.Prompt.System); sys != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: sys})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt.User})

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, adaptor.ClassifyTransport(fmt.Errorf("openai: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, adaptor.ClassifyStatus("openai", resp.StatusCode, msg)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", domain.ErrProviderFailure)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: openai returned an empty response", domain.ErrProviderFailure)
	}
	return &adaptor.TextResult{
		Text: text,
		Usage: domain.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) normalize(name string) string {
	model, reason := normalizeModel(name)
	if reason != "" && c.onWarning != nil {
		c.onWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", name, model))
	}
	return model
}

func normalizeModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := modelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := modelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultModel, "defaulted"
}
