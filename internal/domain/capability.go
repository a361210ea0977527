package domain

import "strings"

// Capability is the unit a model resolver resolves per stage.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
	CapabilityVideo Capability = "video"
)

// IsValid reports whether c is one of the supported capabilities.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityText, CapabilityImage, CapabilityVideo:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability normalises free-form input, returning "" when unsupported.
func ParseCapability(s string) Capability {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if c.IsValid() {
		return c
	}
	return ""
}
