package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
	"genstudio/internal/domain/jsoncfg"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type recordingUploader struct {
	path string
	data []byte
}

func (u *recordingUploader) Upload(_ context.Context, data []byte, path string) (string, error) {
	u.path, u.data = path, data
	return "https://cdn.test/" + path, nil
}

func TestGenerateImageStoresDownloadedAsset(t *testing.T) {
	var lastBody []byte
	blobs := &recordingUploader{}
	client, err := NewClient(Options{
		APIKey:       "test",
		PromptExtend: true,
		Blobs:        blobs,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Host == "example.com" {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("PNG"))}, nil
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test" {
				t.Fatalf("Authorization = %q", got)
			}
			lastBody, _ = io.ReadAll(r.Body)
			body := `{"output":{"choices":[{"message":{"content":[{"image":"https://example.com/generated/out.png"}]}}]},"request_id":"req-123"}`
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
		})},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	res, err := client.GenerateImage(context.Background(), adaptor.Request{
		Prompt:  domain.ResolvedPrompt{System: "studio lighting", User: "coffee cup"},
		Options: jsoncfg.GenerationOptions{AspectRatio: "16:9", Reference: "https://cdn.test/base.png"},
	})
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if res.ImageURL != "https://cdn.test/generated/qwen-image-plus/req-123.png" {
		t.Fatalf("ImageURL = %q", res.ImageURL)
	}
	if string(blobs.data) != "PNG" {
		t.Fatalf("stored data = %q", blobs.data)
	}

	var payload map[string]any
	if err := json.Unmarshal(lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	params := payload["parameters"].(map[string]any)
	if params["size"] != "1664*928" {
		t.Fatalf("size = %v, want 1664*928", params["size"])
	}
	if params["prompt_extend"] != true {
		t.Fatalf("prompt_extend = %v, want true", params["prompt_extend"])
	}
	content := payload["input"].(map[string]any)["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content parts = %d, want 2 (reference image + text)", len(content))
	}
}

func TestGenerateImageWithoutKeyIsUnavailable(t *testing.T) {
	client, err := NewClient(Options{Blobs: &recordingUploader{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GenerateImage(context.Background(), adaptor.Request{Prompt: domain.ResolvedPrompt{User: "x"}})
	if !errors.Is(err, domain.ErrAdaptorUnavailable) {
		t.Fatalf("err = %v, want ErrAdaptorUnavailable", err)
	}
}

func TestGenerateImageAPIError(t *testing.T) {
	client, _ := NewClient(Options{
		APIKey: "test",
		Blobs:  &recordingUploader{},
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			body := `{"code":"DataInspectionFailed","message":"content policy"}`
			return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(body))}, nil
		})},
	})
	_, err := client.GenerateImage(context.Background(), adaptor.Request{Prompt: domain.ResolvedPrompt{User: "x"}})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
	if !strings.Contains(err.Error(), "content policy") {
		t.Fatalf("err = %v, want provider message", err)
	}
}

func TestAspectRatioSize(t *testing.T) {
	cases := map[string]string{"": "1328*1328", "9:16": "928*1664", "4:3": "1472*1104"}
	for in, want := range cases {
		if got := AspectRatioSize(in); got != want {
			t.Fatalf("AspectRatioSize(%q) = %q, want %q", in, got, want)
		}
	}
}
