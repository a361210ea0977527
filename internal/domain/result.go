package domain

import "time"

// StepRecord is the persisted state of one job inside an item record.
type StepRecord struct {
	JobID       string      `json:"jobId" bson:"jobId"`
	Status      JobStatus   `json:"status" bson:"status"`
	Capability  Capability  `json:"capability" bson:"capability"`
	Result      *JobResult  `json:"result,omitempty" bson:"result,omitempty"`
	Error       string      `json:"error,omitempty" bson:"error,omitempty"`
	ErrorKind   ErrorKind   `json:"errorKind,omitempty" bson:"errorKind,omitempty"`
	AdaptorID   string      `json:"adaptorId,omitempty" bson:"adaptorId,omitempty"`
	ModelID     string      `json:"modelId,omitempty" bson:"modelId,omitempty"`
	ModelSource ModelSource `json:"modelSource,omitempty" bson:"modelSource,omitempty"`
}

// ItemRecord is the persisted result of one item for a (project, stage).
// A later batch for the same item overwrites it, including a cleared error.
type ItemRecord struct {
	ProjectID string                `json:"projectId" bson:"projectId"`
	Stage     string                `json:"stage" bson:"stage"`
	ItemID    string                `json:"itemId" bson:"itemId"`
	BatchID   string                `json:"batchId" bson:"batchId"`
	Status    JobStatus             `json:"status" bson:"status"`
	Result    *JobResult            `json:"result,omitempty" bson:"result"`
	Error     string                `json:"error,omitempty" bson:"error"`
	ErrorKind ErrorKind             `json:"errorKind,omitempty" bson:"errorKind"`
	Steps     map[string]StepRecord `json:"steps" bson:"steps"`
	UpdatedAt time.Time             `json:"updatedAt" bson:"updatedAt"`
}

// ItemOutcome is the per-item entry of a batch summary.
type ItemOutcome struct {
	ItemID    string     `json:"itemId"`
	ItemIndex int        `json:"itemIndex"`
	Status    JobStatus  `json:"status"`
	Result    *JobResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorKind ErrorKind  `json:"errorKind,omitempty"`
}

// Summary is the final report of a batch run.
type Summary struct {
	BatchID    string        `json:"batchId"`
	ProjectID  string        `json:"projectId"`
	Product    string        `json:"product"`
	Stage      string        `json:"stage"`
	Status     BatchStatus   `json:"status"`
	Counts     BatchCounts   `json:"counts"`
	Items      []ItemOutcome `json:"items"`
	Fatal      string        `json:"fatal,omitempty"`
	Detached   bool          `json:"detached,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// BatchItem is one requested unit of work.
type BatchItem struct {
	ItemID string         `json:"itemId" validate:"required"`
	Input  map[string]any `json:"input,omitempty"`
}

// BatchRequest asks the planner for a batch of jobs. Locale is the default
// value of the locale prompt variable.
type BatchRequest struct {
	ProjectID     string       `json:"projectId" validate:"required"`
	Product       string       `json:"product" validate:"required"`
	Stage         string       `json:"stage" validate:"required"`
	Items         []BatchItem  `json:"items" validate:"dive"`
	ModelOverride *ModelConfig `json:"modelOverride,omitempty"`
	Locale        string       `json:"locale,omitempty"`
}
