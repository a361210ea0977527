package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Usage carries provider accounting returned with every generation.
type Usage struct {
	InputTokens  int `json:"inputTokens,omitempty" bson:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty" bson:"outputTokens,omitempty"`
	Units        int `json:"units,omitempty" bson:"units,omitempty"`
}

// JobResult is the payload of a successful generation.
type JobResult struct {
	Text      string `json:"text,omitempty" bson:"text,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	VideoURL  string `json:"videoUrl,omitempty" bson:"videoUrl,omitempty"`
	Usage     Usage  `json:"usage" bson:"usage"`
	AdaptorID string `json:"adaptorId,omitempty" bson:"adaptorId,omitempty"`
	ModelID   string `json:"modelId,omitempty" bson:"modelId,omitempty"`
}

// Output returns the primary value of the result: text, else image url, else video url.
func (r *JobResult) Output() string {
	if r == nil {
		return ""
	}
	switch {
	case r.Text != "":
		return r.Text
	case r.ImageURL != "":
		return r.ImageURL
	default:
		return r.VideoURL
	}
}

// GenerationJob encapsulates one unit of generation work within a batch.
type GenerationJob struct {
	ID           string         `json:"id"`
	ItemID       string         `json:"itemId"`
	ItemIndex    int            `json:"itemIndex"`
	Step         string         `json:"step"`
	StageType    string         `json:"stageType"`
	PromptID     string         `json:"promptId"`
	Capability   Capability     `json:"capability"`
	Input        map[string]any `json:"input,omitempty"`
	Predecessors []string       `json:"predecessors,omitempty"`
	Status       JobStatus      `json:"status"`
	Result       *JobResult     `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorKind    ErrorKind      `json:"errorKind,omitempty"`
	AdaptorID    string         `json:"adaptorId,omitempty"`
	ModelID      string         `json:"modelId,omitempty"`
	ModelSource  ModelSource    `json:"modelSource,omitempty"`
	StartedAt    time.Time      `json:"startedAt,omitempty"`
	FinishedAt   time.Time      `json:"finishedAt,omitempty"`
}

// IsTerminal reports whether the job reached done or failed.
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}
