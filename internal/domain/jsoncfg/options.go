package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GenerationOptions carries provider-neutral knobs read from a job's input.
type GenerationOptions struct {
	AspectRatio     string  `json:"aspect_ratio"`
	Quality         string  `json:"quality"`
	Locale          string  `json:"locale"`
	Quantity        int     `json:"quantity"`
	DurationSeconds int     `json:"duration_seconds"`
	Temperature     float64 `json:"temperature"`
	Reference       string  `json:"reference"`
}

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

const (
	// DefaultAspectRatio is used when the input omits the aspect ratio.
	DefaultAspectRatio = "1:1"
	// DefaultQuantity is the number of media generated per job.
	DefaultQuantity = 1
	// MaxQuantity caps media per job.
	MaxQuantity = 4
	// DefaultLocale is applied when no locale preference is provided.
	DefaultLocale = "en"
	// DefaultQuality represents the baseline generation quality.
	DefaultQuality = "standard"
	// DefaultVideoDuration is the clip length in seconds.
	DefaultVideoDuration = 5
	// MaxVideoDuration caps clip length.
	MaxVideoDuration = 10
)

// OptionsFromInput extracts the recognised option keys from a job input map.
// Unknown keys are ignored; they remain available as prompt variables.
func OptionsFromInput(input map[string]any) GenerationOptions {
	var o GenerationOptions
	o.AspectRatio = stringValue(input, "aspectRatio", "aspect_ratio")
	o.Quality = stringValue(input, "quality")
	o.Locale = stringValue(input, "locale")
	o.Reference = stringValue(input, "reference", "imageUrl")
	o.Quantity = intValue(input, "quantity")
	o.DurationSeconds = intValue(input, "durationSeconds", "duration_seconds")
	if v, ok := input["temperature"].(float64); ok {
		o.Temperature = v
	}
	return o
}

// Normalize ensures the options respect server defaults and limits.
func (o *GenerationOptions) Normalize(preferredLocale string) {
	if o == nil {
		return
	}
	if o.Quantity <= 0 {
		o.Quantity = DefaultQuantity
	}
	if o.Quantity > MaxQuantity {
		o.Quantity = MaxQuantity
	}
	if o.AspectRatio == "" {
		o.AspectRatio = DefaultAspectRatio
	}
	if o.Locale == "" {
		if preferredLocale != "" {
			o.Locale = preferredLocale
		} else {
			o.Locale = DefaultLocale
		}
	}
	if o.Quality == "" {
		o.Quality = DefaultQuality
	}
	if o.DurationSeconds <= 0 {
		o.DurationSeconds = DefaultVideoDuration
	}
	if o.DurationSeconds > MaxVideoDuration {
		o.DurationSeconds = MaxVideoDuration
	}
}

// Validate checks normalized options.
func (o GenerationOptions) Validate() error {
	if _, ok := allowedAspectRatios[o.AspectRatio]; !ok {
		return fmt.Errorf("aspect_ratio must be one of 1:1, 4:3, 3:4, 16:9, 9:16")
	}
	if o.Quantity < 1 || o.Quantity > MaxQuantity {
		return fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

func stringValue(input map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := input[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func intValue(input map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := input[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case json.Number:
			n, err := v.Int64()
			if err == nil {
				return int(n)
			}
		}
	}
	return 0
}
