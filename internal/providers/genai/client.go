// Package genai adapts Gemini's generateContent API to the text, image and
// video generator contracts.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	VideoModel string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	Blobs      adaptor.Uploader
	// PollInterval spaces video operation polls.
	PollInterval time.Duration
}

// Client talks to Gemini over REST. Without an API key it produces
// deterministic synthetic assets so local and CI environments stay runnable.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	videoModel string
	httpClient *http.Client
	logger     *zerolog.Logger
	blobs      adaptor.Uploader
	poll       time.Duration
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiGenerateContentResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := firstNonEmpty(opts.Model, "gemini-2.5-flash")
	imageModel := firstNonEmpty(opts.ImageModel, "gemini-2.5-flash-image")
	videoModel := firstNonEmpty(opts.VideoModel, "veo-3.0-fast-generate-001")

	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("genai: blob store is required")
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		imageModel: imageModel,
		videoModel: videoModel,
		httpClient: client,
		logger:     logger,
		blobs:      opts.Blobs,
		poll:       poll,
	}, nil
}

// Model returns the configured Gemini text model identifier.
func (c *Client) Model() string {
	return c.model
}

// Synthetic reports whether the client runs without credentials.
func (c *Client) Synthetic() bool {
	return c.apiKey == ""
}

// GenerateText runs a single generateContent call and concatenates text parts.
func (c *Client) GenerateText(ctx context.Context, req adaptor.Request) (*adaptor.TextResult, error) {
	model := firstNonEmpty(req.ModelID, c.model)
	if c.Synthetic() {
		return syntheticText(model, req), nil
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt.User}}}},
	}
	if sys := strings.TrimSpace(req.Prompt.System); sys != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}
	if req.Options.Temperature > 0 {
		t := req.Options.Temperature
		payload.GenerationConfig = &geminiGenerationConfig{Temperature: &t}
	}

	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, model, payload, &response); err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("gemini: empty text response")
	}
	c.logger.Debug().
		Str("model", model).
		Int("input_tokens", response.UsageMetadata.PromptTokenCount).
		Int("output_tokens", response.UsageMetadata.CandidatesTokenCount).
		Msg("genai: generated text")
	return &adaptor.TextResult{
		Text:  text,
		Usage: usageFrom(response.UsageMetadata, 0),
	}, nil
}

func (c *Client) invoke(ctx context.Context, model string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gemini: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return adaptor.ClassifyTransport(fmt.Errorf("gemini: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		msg := strings.TrimSpace(string(data))
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return adaptor.ClassifyStatus("gemini", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}

func usageFrom(u geminiUsage, units int) domain.Usage {
	return domain.Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount, Units: units}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
