package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
)

type veoInstance struct {
	Prompt string `json:"prompt"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type veoRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoOperation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// GenerateImage renders one image and stores it in the blob store.
func (c *Client) GenerateImage(ctx context.Context, req adaptor.Request) (*adaptor.ImageResult, error) {
	model := firstNonEmpty(req.ModelID, c.imageModel)
	var (
		data   []byte
		format string
		usage  domain.Usage
	)
	if c.Synthetic() {
		seed := deterministicSeed(model, req.Prompt.Text(), req.Options.AspectRatio, req.Options.Locale)
		width, height := normalizeAspect(req.Options.AspectRatio)
		data, format = renderSyntheticImage(width, height, seed), "image/png"
	} else {
		payload := geminiGenerateContentRequest{
			Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: buildImagePrompt(req)}}}},
			GenerationConfig: &geminiGenerationConfig{
				ResponseModalities: []string{"TEXT", "IMAGE"},
			},
		}
		var response geminiGenerateContentResponse
		if err := c.invoke(ctx, model, payload, &response); err != nil {
			return nil, err
		}
		var err error
		data, format, err = c.firstInlineAsset(ctx, response)
		if err != nil {
			return nil, err
		}
		usage = usageFrom(response.UsageMetadata, 0)
	}
	usage.Units = 1

	key := fmt.Sprintf("generated/%s/%s%s", url.PathEscape(model), deterministicSeed(model, req.Prompt.Text(), time.Now().UnixNano()), extensionFor(format, ".png"))
	imageURL, err := c.blobs.Upload(ctx, data, key)
	if err != nil {
		return nil, fmt.Errorf("genai: store image: %w", err)
	}
	c.logger.Debug().
		Str("model", model).
		Bool("synthetic", c.Synthetic()).
		Str("url", imageURL).
		Msg("genai: generated image")
	return &adaptor.ImageResult{ImageURL: imageURL, Usage: usage}, nil
}

// GenerateVideo starts a long-running Veo operation, polls it to completion
// and stores the clip in the blob store.
func (c *Client) GenerateVideo(ctx context.Context, req adaptor.Request) (*adaptor.VideoResult, error) {
	model := firstNonEmpty(req.ModelID, c.videoModel)
	duration := req.Options.DurationSeconds
	var data []byte
	if c.Synthetic() {
		seed := deterministicSeed(model, req.Prompt.Text(), req.Options.Locale)
		data = renderSyntheticVideo(seed, req.Prompt.Text())
		if duration <= 0 {
			duration = estimateVideoLength(req.Prompt.Text())
		}
	} else {
		var err error
		data, err = c.remoteVideo(ctx, model, req)
		if err != nil {
			return nil, err
		}
	}

	key := fmt.Sprintf("generated/%s/%s.mp4", url.PathEscape(model), deterministicSeed(model, req.Prompt.Text(), time.Now().UnixNano()))
	videoURL, err := c.blobs.Upload(ctx, data, key)
	if err != nil {
		return nil, fmt.Errorf("genai: store video: %w", err)
	}
	c.logger.Debug().
		Str("model", model).
		Bool("synthetic", c.Synthetic()).
		Str("url", videoURL).
		Msg("genai: generated video")
	return &adaptor.VideoResult{VideoURL: videoURL, Usage: domain.Usage{Units: duration}}, nil
}

func (c *Client) remoteVideo(ctx context.Context, model string, req adaptor.Request) ([]byte, error) {
	payload := veoRequest{
		Instances: []veoInstance{{Prompt: req.Prompt.Text()}},
		Parameters: veoParameters{
			AspectRatio:     req.Options.AspectRatio,
			DurationSeconds: req.Options.DurationSeconds,
		},
	}
	var op veoOperation
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, url.PathEscape(model))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &op); err != nil {
		return nil, err
	}
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, adaptor.ClassifyTransport(ctx.Err())
		case <-time.After(c.poll):
		}
		name := op.Name
		op = veoOperation{}
		if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/"+strings.TrimLeft(name, "/"), nil, &op); err != nil {
			return nil, err
		}
		if op.Name == "" {
			op.Name = name
		}
	}
	if op.Error != nil {
		return nil, fmt.Errorf("%w: veo operation: %s", domain.ErrProviderFailure, op.Error.Message)
	}
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		return nil, fmt.Errorf("%w: veo returned no video", domain.ErrProviderFailure)
	}
	data, _, err := c.downloadFile(ctx, samples[0].Video.URI)
	return data, err
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("gemini: marshal request: %w", err)
		}
		body = strings.NewReader(string(raw))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
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
		return adaptor.ClassifyStatus("gemini", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}

func (c *Client) firstInlineAsset(ctx context.Context, response geminiGenerateContentResponse) ([]byte, string, error) {
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, "", fmt.Errorf("gemini: decode inline data: %w", err)
				}
				return data, part.InlineData.MimeType, nil
			}
			if part.FileData != nil && part.FileData.FileURI != "" {
				data, mime, err := c.downloadFile(ctx, part.FileData.FileURI)
				if err != nil {
					return nil, "", err
				}
				return data, firstNonEmpty(part.FileData.MimeType, mime), nil
			}
		}
	}
	return nil, "", fmt.Errorf("%w: gemini returned no image", domain.ErrProviderFailure)
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: create download request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", adaptor.ClassifyTransport(fmt.Errorf("gemini: download file: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", adaptor.ClassifyStatus("gemini", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func buildImagePrompt(req adaptor.Request) string {
	var b strings.Builder
	b.WriteString(firstNonEmpty(req.Prompt.Text(), "Create a marketing image"))
	if aspect := strings.TrimSpace(req.Options.AspectRatio); aspect != "" {
		b.WriteString("\nAspect ratio: ")
		b.WriteString(aspect)
	}
	if locale := strings.TrimSpace(req.Options.Locale); locale != "" {
		b.WriteString("\nLocale: ")
		b.WriteString(locale)
	}
	return b.String()
}

func extensionFor(mime, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return fallback
}
