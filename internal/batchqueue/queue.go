// Package batchqueue stores batch requests in Postgres for asynchronous
// execution by the worker.
package batchqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// ErrEmpty is returned by Claim when no batch is waiting.
var ErrEmpty = errors.New("batchqueue: no batch available")

// Batch is one queued request and, once finished, its summary.
type Batch struct {
	ID        string              `json:"id"`
	ProjectID string              `json:"projectId"`
	Status    Status              `json:"status"`
	Request   domain.BatchRequest `json:"request"`
	Summary   *domain.Summary     `json:"summary,omitempty"`
	Error     string              `json:"error,omitempty"`
	Attempts  int                 `json:"attempts"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt,omitempty"`
}

type Queue struct {
	sql   infra.SQLExecutor
	newID func() string
}

func NewQueue(sql infra.SQLExecutor) *Queue {
	return &Queue{sql: sql, newID: uuid.NewString}
}

// Enqueue stores req and returns the id of the queued batch.
func (q *Queue) Enqueue(ctx context.Context, req domain.BatchRequest) (*Batch, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	b := &Batch{ID: q.newID(), ProjectID: req.ProjectID, Status: StatusQueued, Request: req}
	row := q.sql.QueryRow(ctx, sqlinline.QEnqueueBatch, b.ID, req.ProjectID, req.Product, req.Stage, raw)
	if err := row.Scan(&b.CreatedAt); err != nil {
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}
	return b, nil
}

// Claim moves the oldest queued batch to RUNNING. Concurrent workers never
// claim the same row.
func (q *Queue) Claim(ctx context.Context) (*Batch, error) {
	row := q.sql.QueryRow(ctx, sqlinline.QWorkerClaimBatch)
	var (
		b   Batch
		raw []byte
	)
	if err := row.Scan(&b.ID, &b.ProjectID, &raw, &b.Attempts, &b.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	if err := json.Unmarshal(raw, &b.Request); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", b.ID, err)
	}
	b.Status = StatusRunning
	return &b, nil
}

// Finish records the outcome of a claimed batch. runErr marks it failed.
func (q *Queue) Finish(ctx context.Context, id string, summary *domain.Summary, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if _, err := q.sql.Exec(ctx, sqlinline.QFinishBatch, id, string(status), raw, msg); err != nil {
		return fmt.Errorf("finish batch %s: %w", id, err)
	}
	return nil
}

// Get returns a batch of projectID.
func (q *Queue) Get(ctx context.Context, projectID, id string) (*Batch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	row := q.sql.QueryRow(ctx, sqlinline.QSelectBatch, id, projectID)
	var (
		b                Batch
		status           string
		request, summary []byte
	)
	if err := row.Scan(&b.ID, &b.ProjectID, &status, &request, &summary, &b.Error, &b.Attempts, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load batch %s: %w", id, err)
	}
	b.Status = Status(status)
	if err := json.Unmarshal(request, &b.Request); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	if err := json.Unmarshal(summary, &b.Summary); err != nil {
		return nil, fmt.Errorf("decode summary %s: %w", id, err)
	}
	return &b, nil
}

// RequeueStale returns RUNNING batches untouched for longer than olderThan to
// the queue, up to maxAttempts claims.
func (q *Queue) RequeueStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int64, error) {
	tag, err := q.sql.Exec(ctx, sqlinline.QRequeueStaleBatches, int(olderThan.Seconds()), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("requeue stale batches: %w", err)
	}
	return tag.RowsAffected(), nil
}
