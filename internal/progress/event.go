// Package progress defines the batch event stream and the sinks that carry
// it to consumers.
package progress

import (
	"errors"
	"time"

	"genstudio/internal/domain"
)

// Event names are part of the wire contract.
const (
	EventStart      = "start"
	EventProgress   = "progress"
	EventItemResult = "itemResult"
	EventComplete   = "complete"
	EventFatalError = "fatalError"
)

// ErrClosed is returned by Emit after the sink was closed.
var ErrClosed = errors.New("progress: sink closed")

// Event is one ordered message of a batch stream.
type Event struct {
	Name    string    `json:"event"`
	Seq     int       `json:"seq"`
	BatchID string    `json:"batchId"`
	At      time.Time `json:"at"`
	Data    any       `json:"data"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Name == EventComplete || e.Name == EventFatalError
}

// StartData opens a stream.
type StartData struct {
	BatchID   string `json:"batchId"`
	ProjectID string `json:"projectId"`
	Product   string `json:"product"`
	Stage     string `json:"stage"`
	Items     int    `json:"items"`
	Jobs      int    `json:"jobs"`
}

// ProgressData reports one job settling.
type ProgressData struct {
	Message string `json:"message"`
	Percent int    `json:"percent"`
	JobID   string `json:"jobId"`
	ItemID  string `json:"itemId"`
	Step    string `json:"step"`
}

// ItemResultData carries the outcome of one job.
type ItemResultData struct {
	JobID     string            `json:"jobId"`
	ItemID    string            `json:"itemId"`
	ItemIndex int               `json:"itemIndex"`
	Step      string            `json:"step"`
	Status    domain.JobStatus  `json:"status"`
	Result    *domain.JobResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorKind domain.ErrorKind  `json:"errorKind,omitempty"`
}

// FatalData ends a stream that could not complete.
type FatalData struct {
	Message string           `json:"message"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
	Summary *domain.Summary  `json:"summary,omitempty"`
}

// Sink receives a batch's events in order. Done is closed when the consumer
// goes away; Emit may keep failing after that.
type Sink interface {
	Emit(Event) error
	Close() error
	Done() <-chan struct{}
}
