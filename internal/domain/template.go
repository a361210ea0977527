package domain

import (
	"strings"
	"time"
)

// FragmentRole distinguishes system and user prompt fragments.
type FragmentRole string

const (
	RoleSystem FragmentRole = "system"
	RoleUser   FragmentRole = "user"
)

// PromptFragment is one ordered piece of a prompt template.
type PromptFragment struct {
	Role FragmentRole `json:"role" bson:"role"`
	Text string       `json:"text" bson:"text"`
}

// ModelSource records which precedence layer produced a ModelConfig.
type ModelSource string

const (
	ModelSourceExplicit     ModelSource = "explicit"
	ModelSourceProject      ModelSource = "project"
	ModelSourceStageDefault ModelSource = "stage-default"
)

// ModelConfig selects a generation backend and model.
type ModelConfig struct {
	AdaptorID string      `json:"adaptorId" bson:"adaptorId"`
	ModelID   string      `json:"modelId" bson:"modelId"`
	Source    ModelSource `json:"source,omitempty" bson:"source,omitempty"`
}

// IsZero reports whether no adaptor has been configured.
func (m *ModelConfig) IsZero() bool {
	return m == nil || strings.TrimSpace(m.AdaptorID) == ""
}

// PromptTemplate is the stage default prompt for (StageType, PromptID).
type PromptTemplate struct {
	StageType     string            `json:"stageType" bson:"stageType"`
	PromptID      string            `json:"promptId" bson:"promptId"`
	Fragments     []PromptFragment  `json:"fragments" bson:"fragments"`
	Variables     map[string]string `json:"variables,omitempty" bson:"variables,omitempty"`
	ActiveVersion int               `json:"activeVersion" bson:"activeVersion"`
	Model         *ModelConfig      `json:"model,omitempty" bson:"model,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// PromptVersion is an immutable snapshot of a template's content.
type PromptVersion struct {
	StageType string            `json:"stageType" bson:"stageType"`
	PromptID  string            `json:"promptId" bson:"promptId"`
	Version   int               `json:"version" bson:"version"`
	Fragments []PromptFragment  `json:"fragments" bson:"fragments"`
	Variables map[string]string `json:"variables,omitempty" bson:"variables,omitempty"`
	Note      string            `json:"note,omitempty" bson:"note,omitempty"`
	CreatedAt time.Time         `json:"createdAt" bson:"createdAt"`
}

// PromptOverride replaces the base template wholesale for one project.
type PromptOverride struct {
	ProjectID string         `json:"projectId" bson:"projectId"`
	Template  PromptTemplate `json:"template" bson:"template"`
	UpdatedAt time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// ProjectModelConfig is the project-level saved model choice for a stage capability.
type ProjectModelConfig struct {
	ProjectID  string      `json:"projectId" bson:"projectId"`
	StageType  string      `json:"stageType" bson:"stageType"`
	Capability Capability  `json:"capability" bson:"capability"`
	Model      ModelConfig `json:"model" bson:"model"`
	UpdatedAt  time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// ResolvedPrompt holds fully rendered prompt text. Placeholders without a
// matching variable are left as literal text.
type ResolvedPrompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Text concatenates system and user text for adaptors that take a single prompt.
func (p ResolvedPrompt) Text() string {
	system := strings.TrimSpace(p.System)
	user := strings.TrimSpace(p.User)
	switch {
	case system == "":
		return user
	case user == "":
		return system
	default:
		return system + "\n\n" + user
	}
}
