package domain

import (
	"fmt"
	"time"
)

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchStatusAccepted  BatchStatus = "accepted"
	BatchStatusExecuting BatchStatus = "executing"
	BatchStatusTerminal  BatchStatus = "terminal"
)

// BatchCounts summarises job states. Running jobs count as pending.
type BatchCounts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// BatchRun is the job table for one batch request. Its methods are not safe
// for concurrent use; the engine serialises every transition.
type BatchRun struct {
	ID            string           `json:"id"`
	ProjectID     string           `json:"projectId"`
	Product       string           `json:"product"`
	Stage         string           `json:"stage"`
	ModelOverride *ModelConfig     `json:"modelOverride,omitempty"`
	Locale        string           `json:"locale,omitempty"`
	Jobs          []*GenerationJob `json:"jobs"`
	Status        BatchStatus      `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`

	index      map[string]*GenerationJob
	dependents map[string][]string
}

// NewBatchRun builds an accepted batch over jobs.
func NewBatchRun(id, projectID, product, stage string, jobs []*GenerationJob) *BatchRun {
	b := &BatchRun{
		ID:        id,
		ProjectID: projectID,
		Product:   product,
		Stage:     stage,
		Jobs:      jobs,
		Status:    BatchStatusAccepted,
		CreatedAt: time.Now().UTC(),
	}
	b.reindex()
	return b
}

func (b *BatchRun) reindex() {
	b.index = make(map[string]*GenerationJob, len(b.Jobs))
	b.dependents = make(map[string][]string)
	for _, j := range b.Jobs {
		if j.Status == "" {
			j.Status = JobStatusPending
		}
		b.index[j.ID] = j
	}
	for _, j := range b.Jobs {
		for _, pred := range j.Predecessors {
			b.dependents[pred] = append(b.dependents[pred], j.ID)
		}
	}
}

// Job returns the job with the given id, or nil.
func (b *BatchRun) Job(id string) *GenerationJob {
	if b.index == nil {
		b.reindex()
	}
	return b.index[id]
}

// Dependents returns the direct dependents of id in job order.
func (b *BatchRun) Dependents(id string) []*GenerationJob {
	if b.index == nil {
		b.reindex()
	}
	ids := b.dependents[id]
	out := make([]*GenerationJob, 0, len(ids))
	for _, depID := range ids {
		out = append(out, b.index[depID])
	}
	return out
}

func (b *BatchRun) predecessorsDone(j *GenerationJob) bool {
	for _, pred := range j.Predecessors {
		p := b.Job(pred)
		if p == nil || p.Status != JobStatusDone {
			return false
		}
	}
	return true
}

// Ready returns pending jobs whose predecessors are all done, in job order.
func (b *BatchRun) Ready() []*GenerationJob {
	var ready []*GenerationJob
	for _, j := range b.Jobs {
		if j.Status == JobStatusPending && b.predecessorsDone(j) {
			ready = append(ready, j)
		}
	}
	return ready
}

// Start moves a job to running. Every predecessor must be done.
func (b *BatchRun) Start(id string) error {
	j := b.Job(id)
	if j == nil {
		return fmt.Errorf("%w: unknown job %s", ErrInvalidTransition, id)
	}
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, j.Status)
	}
	if !b.predecessorsDone(j) {
		return fmt.Errorf("%w: job %s has unfinished predecessors", ErrInvalidTransition, id)
	}
	j.Status = JobStatusRunning
	j.StartedAt = time.Now().UTC()
	b.Status = BatchStatusExecuting
	return nil
}

// Complete marks a running job done and returns dependents that became ready.
func (b *BatchRun) Complete(id string, result *JobResult) ([]*GenerationJob, error) {
	j := b.Job(id)
	if j == nil || j.Status != JobStatusRunning {
		return nil, fmt.Errorf("%w: complete %s", ErrInvalidTransition, id)
	}
	j.Status = JobStatusDone
	j.Result = result
	j.FinishedAt = time.Now().UTC()
	var ready []*GenerationJob
	for _, dep := range b.Dependents(id) {
		if dep.Status == JobStatusPending && b.predecessorsDone(dep) {
			ready = append(ready, dep)
		}
	}
	b.settle()
	return ready, nil
}

// Fail marks a running job failed and cascade-fails its pending dependents
// without running them. The cascaded jobs are returned.
func (b *BatchRun) Fail(id string, kind ErrorKind, msg string) ([]*GenerationJob, error) {
	j := b.Job(id)
	if j == nil || j.Status != JobStatusRunning {
		return nil, fmt.Errorf("%w: fail %s", ErrInvalidTransition, id)
	}
	j.Status = JobStatusFailed
	j.ErrorKind = kind
	j.Error = msg
	j.FinishedAt = time.Now().UTC()
	cascaded := b.cascade(id)
	b.settle()
	return cascaded, nil
}

func (b *BatchRun) cascade(id string) []*GenerationJob {
	var out []*GenerationJob
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range b.Dependents(cur) {
			if dep.Status != JobStatusPending {
				continue
			}
			dep.Status = JobStatusFailed
			dep.ErrorKind = ErrorKindDependencyFailed
			dep.Error = fmt.Sprintf("predecessor %s failed", cur)
			dep.FinishedAt = time.Now().UTC()
			out = append(out, dep)
			queue = append(queue, dep.ID)
		}
	}
	return out
}

// FailBlocked fails pending jobs that can never become ready because a
// predecessor already failed.
func (b *BatchRun) FailBlocked() []*GenerationJob {
	var out []*GenerationJob
	for _, j := range b.Jobs {
		if j.Status != JobStatusFailed {
			continue
		}
		out = append(out, b.cascade(j.ID)...)
	}
	b.settle()
	return out
}

// Abort fails every pending job with ErrorKindAborted.
func (b *BatchRun) Abort(msg string) []*GenerationJob {
	var out []*GenerationJob
	now := time.Now().UTC()
	for _, j := range b.Jobs {
		if j.Status != JobStatusPending {
			continue
		}
		j.Status = JobStatusFailed
		j.ErrorKind = ErrorKindAborted
		j.Error = msg
		j.FinishedAt = now
		out = append(out, j)
	}
	b.settle()
	return out
}

// Retry resets a failed job, and every dependent cascade-failed because of it,
// back to pending. Its own predecessors must not have failed.
func (b *BatchRun) Retry(id string) error {
	j := b.Job(id)
	if j == nil {
		return fmt.Errorf("%w: unknown job %s", ErrInvalidTransition, id)
	}
	if j.Status != JobStatusFailed {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, j.Status)
	}
	for _, pred := range j.Predecessors {
		if p := b.Job(pred); p != nil && p.Status == JobStatusFailed {
			return fmt.Errorf("%w: predecessor %s of %s failed", ErrInvalidTransition, pred, id)
		}
	}
	reset := func(g *GenerationJob) {
		g.Status = JobStatusPending
		g.Result = nil
		g.Error = ""
		g.ErrorKind = ErrorKindNone
		g.StartedAt = time.Time{}
		g.FinishedAt = time.Time{}
	}
	reset(j)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range b.Dependents(cur) {
			if dep.Status == JobStatusFailed && dep.ErrorKind == ErrorKindDependencyFailed {
				reset(dep)
				queue = append(queue, dep.ID)
			}
		}
	}
	b.Status = BatchStatusAccepted
	return nil
}

// Counts tallies job states.
func (b *BatchRun) Counts() BatchCounts {
	var c BatchCounts
	for _, j := range b.Jobs {
		switch j.Status {
		case JobStatusDone:
			c.Succeeded++
		case JobStatusFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c
}

// IsTerminal reports whether every job is done or failed.
func (b *BatchRun) IsTerminal() bool {
	for _, j := range b.Jobs {
		if !j.IsTerminal() {
			return false
		}
	}
	return true
}

func (b *BatchRun) settle() {
	if b.IsTerminal() {
		b.Status = BatchStatusTerminal
	}
}

// ItemJobs returns the jobs planned for the request item at itemIndex, in order.
func (b *BatchRun) ItemJobs(itemIndex int) []*GenerationJob {
	var out []*GenerationJob
	for _, j := range b.Jobs {
		if j.ItemIndex == itemIndex {
			out = append(out, j)
		}
	}
	return out
}

// ItemCount returns the number of request items in the batch.
func (b *BatchRun) ItemCount() int {
	seen := make(map[int]struct{})
	for _, j := range b.Jobs {
		seen[j.ItemIndex] = struct{}{}
	}
	return len(seen)
}

// Outcomes aggregates job states into one outcome per request item.
func (b *BatchRun) Outcomes() []ItemOutcome {
	var order []int
	seen := make(map[int]struct{})
	for _, j := range b.Jobs {
		if _, ok := seen[j.ItemIndex]; ok {
			continue
		}
		seen[j.ItemIndex] = struct{}{}
		order = append(order, j.ItemIndex)
	}
	out := make([]ItemOutcome, 0, len(order))
	for _, idx := range order {
		out = append(out, outcomeOf(b.ItemJobs(idx)))
	}
	return out
}

// ItemRecord builds the persisted record for the item at itemIndex.
func (b *BatchRun) ItemRecord(itemIndex int) ItemRecord {
	jobs := b.ItemJobs(itemIndex)
	outcome := outcomeOf(jobs)
	rec := ItemRecord{
		ProjectID: b.ProjectID,
		Stage:     b.Stage,
		ItemID:    outcome.ItemID,
		BatchID:   b.ID,
		Status:    outcome.Status,
		Result:    outcome.Result,
		Error:     outcome.Error,
		ErrorKind: outcome.ErrorKind,
		Steps:     make(map[string]StepRecord, len(jobs)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, j := range jobs {
		rec.Steps[j.Step] = StepRecord{
			JobID:       j.ID,
			Status:      j.Status,
			Capability:  j.Capability,
			Result:      j.Result,
			Error:       j.Error,
			ErrorKind:   j.ErrorKind,
			AdaptorID:   j.AdaptorID,
			ModelID:     j.ModelID,
			ModelSource: j.ModelSource,
		}
	}
	return rec
}

func outcomeOf(jobs []*GenerationJob) ItemOutcome {
	var o ItemOutcome
	if len(jobs) == 0 {
		return o
	}
	o.ItemID = jobs[0].ItemID
	o.ItemIndex = jobs[0].ItemIndex
	o.Status = JobStatusDone
	pending := false
	for _, j := range jobs {
		switch j.Status {
		case JobStatusFailed:
			if o.Status != JobStatusFailed || o.ErrorKind == ErrorKindDependencyFailed {
				o.Error = j.Error
				o.ErrorKind = j.ErrorKind
			}
			o.Status = JobStatusFailed
		case JobStatusPending, JobStatusRunning:
			pending = true
		}
	}
	if o.Status != JobStatusFailed && pending {
		o.Status = JobStatusPending
	}
	if last := jobs[len(jobs)-1]; last.Status == JobStatusDone {
		o.Result = last.Result
	}
	return o
}
