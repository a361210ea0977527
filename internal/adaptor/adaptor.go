// Package adaptor defines the generation backend contract and the registry
// that maps adaptor ids to implementations.
package adaptor

import (
	"context"
	"fmt"

	"genstudio/internal/domain"
	"genstudio/internal/domain/jsoncfg"
)

// Request is one synchronous generation call.
type Request struct {
	ModelID string
	Prompt  domain.ResolvedPrompt
	Options jsoncfg.GenerationOptions
}

type TextResult struct {
	Text  string
	Usage domain.Usage
}

type ImageResult struct {
	ImageURL string
	Usage    domain.Usage
}

type VideoResult struct {
	VideoURL string
	Usage    domain.Usage
}

// TextGenerator is implemented by adaptors that produce text.
type TextGenerator interface {
	GenerateText(ctx context.Context, req Request) (*TextResult, error)
}

// ImageGenerator is implemented by adaptors that produce images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req Request) (*ImageResult, error)
}

// VideoGenerator is implemented by adaptors that produce videos.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req Request) (*VideoResult, error)
}

// Supports reports whether impl implements the generator for capability.
func Supports(impl any, capability domain.Capability) bool {
	switch capability {
	case domain.CapabilityText:
		_, ok := impl.(TextGenerator)
		return ok
	case domain.CapabilityImage:
		_, ok := impl.(ImageGenerator)
		return ok
	case domain.CapabilityVideo:
		_, ok := impl.(VideoGenerator)
		return ok
	}
	return false
}

// Capabilities lists what impl can generate.
func Capabilities(impl any) []domain.Capability {
	var caps []domain.Capability
	for _, c := range []domain.Capability{domain.CapabilityText, domain.CapabilityImage, domain.CapabilityVideo} {
		if Supports(impl, c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// Generate dispatches req to the generator for capability and normalises the
// result. Callers must have checked Supports.
func Generate(ctx context.Context, impl any, capability domain.Capability, req Request) (*domain.JobResult, error) {
	switch capability {
	case domain.CapabilityText:
		g, ok := impl.(TextGenerator)
		if !ok {
			break
		}
		res, err := g.GenerateText(ctx, req)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{Text: res.Text, Usage: res.Usage}, nil
	case domain.CapabilityImage:
		g, ok := impl.(ImageGenerator)
		if !ok {
			break
		}
		res, err := g.GenerateImage(ctx, req)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{ImageURL: res.ImageURL, Usage: res.Usage}, nil
	case domain.CapabilityVideo:
		g, ok := impl.(VideoGenerator)
		if !ok {
			break
		}
		res, err := g.GenerateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{VideoURL: res.VideoURL, Usage: res.Usage}, nil
	}
	return nil, fmt.Errorf("%w: capability %s not implemented", domain.ErrAdaptorUnavailable, capability)
}

// Uploader persists generated media and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
}
