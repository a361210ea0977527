// Package qwen adapts DashScope's Qwen text-to-image API to the image
// generator contract.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	NegativePrompt string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	Blobs          adaptor.Uploader
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the DashScope multimodal generation endpoint.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	negativePrompt string
	promptExtend   bool
	watermark      bool
	httpClient     *http.Client
	logger         *zerolog.Logger
	blobs          adaptor.Uploader
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width      int `json:"width"`
		Height     int `json:"height"`
		ImageCount int `json:"image_count"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if opts.Blobs == nil {
		return nil, fmt.Errorf("qwen: blob store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-plus"
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	return &Client{
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        baseURL,
		model:          model,
		negativePrompt: strings.TrimSpace(opts.NegativePrompt),
		promptExtend:   opts.PromptExtend,
		watermark:      opts.Watermark,
		httpClient:     httpClient,
		logger:         logger,
		blobs:          opts.Blobs,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateImage invokes DashScope once, copies the returned image into the
// blob store and returns the stored URL.
func (c *Client) GenerateImage(ctx context.Context, req adaptor.Request) (*adaptor.ImageResult, error) {
	if !c.HasCredentials() {
		return nil, fmt.Errorf("%w: qwen api key is not configured", domain.ErrAdaptorUnavailable)
	}
	prompt := req.Prompt.Text()
	if prompt == "" {
		return nil, fmt.Errorf("%w: qwen prompt is empty", domain.ErrProviderFailure)
	}
	model := c.model
	if m := strings.TrimSpace(req.ModelID); m != "" {
		model = m
	}
	content := []generationContent{{Text: prompt}}
	if ref := strings.TrimSpace(req.Options.Reference); ref != "" {
		content = append([]generationContent{{Image: ref}}, content...)
	}
	payload := generationRequest{
		Model: model,
		Input: generationInput{
			Messages: []generationMessage{{Role: "user", Content: content}},
		},
		Parameters: generationParams{
			NegativePrompt: c.negativePrompt,
			Size:           AspectRatioSize(req.Options.AspectRatio),
		},
	}
	if c.promptExtend {
		extend := true
		payload.Parameters.PromptExtend = &extend
	}
	watermark := c.watermark
	payload.Parameters.Watermark = &watermark

	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, adaptor.ClassifyTransport(fmt.Errorf("qwen: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adaptor.ClassifyTransport(fmt.Errorf("qwen: read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			msg = fmt.Sprintf("%s (%s)", detail.Message, detail.Code)
		}
		return nil, adaptor.ClassifyStatus("qwen", resp.StatusCode, msg)
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	if decoded.Code != "" {
		return nil, fmt.Errorf("%w: qwen: %s (%s)", domain.ErrProviderFailure, decoded.Message, decoded.Code)
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, fmt.Errorf("%w: qwen returned no image", domain.ErrProviderFailure)
	}
	data, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("generated/%s/%s%s", url.PathEscape(model), firstNonEmpty(decoded.RequestID, fmt.Sprint(time.Now().UnixNano())), imageExt(imageURL))
	stored, err := c.blobs.Upload(ctx, data, key)
	if err != nil {
		return nil, fmt.Errorf("qwen: store image: %w", err)
	}
	c.logger.Debug().
		Str("model", model).
		Str("request_id", decoded.RequestID).
		Str("url", stored).
		Msg("qwen: generated image asset")
	return &adaptor.ImageResult{ImageURL: stored, Usage: domain.Usage{Units: 1}}, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("%w: qwen invalid image url: %s", domain.ErrProviderFailure, imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, adaptor.ClassifyTransport(fmt.Errorf("qwen: download image: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, adaptor.ClassifyStatus("qwen", resp.StatusCode, "download image")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read image: %w", err)
	}
	return data, nil
}

// AspectRatioSize maps an aspect ratio onto a Qwen-supported output size.
func AspectRatioSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "4:3":
		return "1472*1104"
	case "3:4":
		return "1104*1472"
	case "9:16":
		return "928*1664"
	default:
		return "1328*1328"
	}
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

func imageExt(imageURL string) string {
	if u, err := url.Parse(imageURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".png", ".jpg", ".jpeg", ".webp":
			return ext
		}
	}
	return ".png"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
