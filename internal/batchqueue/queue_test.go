package batchqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
	"genstudio/internal/progress"
)

type stubExecutor struct {
	row      []any
	err      error
	affected int64
	queries  []string
	args     [][]any
}

func (s *stubExecutor) record(query string, args []any) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.record(query, args)
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", s.affected)), s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.record(query, args)
	return stubRow{values: s.row, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *int:
			*p = r.values[i].(int)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

func TestEnqueueUsesMarkedQuery(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := &stubExecutor{row: []any{created}}
	q := NewQueue(exec)
	q.newID = func() string { return "7d1b5b86-3a4c-4d35-9a0f-3c1d8c4b2f10" }

	b, err := q.Enqueue(context.Background(), domain.BatchRequest{ProjectID: "p1", Product: "sns", Stage: "image", Items: []domain.BatchItem{{ItemID: "a"}}})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, b.Status)
	assert.Equal(t, created, b.CreatedAt)
	assert.True(t, strings.HasPrefix(exec.queries[0], "--sql "))

	args := exec.args[0]
	require.Len(t, args, 5)
	assert.Equal(t, "7d1b5b86-3a4c-4d35-9a0f-3c1d8c4b2f10", args[0])
	assert.Contains(t, string(args[4].([]byte)), `"itemId":"a"`)
}

func TestClaim(t *testing.T) {
	req, _ := json.Marshal(domain.BatchRequest{ProjectID: "p1", Product: "sns", Stage: "image"})
	exec := &stubExecutor{row: []any{"b1", "p1", req, 2, time.Now()}}
	b, err := NewQueue(exec).Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, b.Status)
	assert.Equal(t, 2, b.Attempts)
	assert.Equal(t, "sns", b.Request.Product)

	_, err = NewQueue(&stubExecutor{err: pgx.ErrNoRows}).Claim(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFinishRecordsFailure(t *testing.T) {
	exec := &stubExecutor{}
	err := NewQueue(exec).Finish(context.Background(), "b1", &domain.Summary{BatchID: "b1"}, errors.New("provider unreachable"))
	require.NoError(t, err)
	args := exec.args[0]
	assert.Equal(t, string(StatusFailed), args[1])
	assert.Equal(t, "provider unreachable", args[3])
}

func TestGet(t *testing.T) {
	id := "7d1b5b86-3a4c-4d35-9a0f-3c1d8c4b2f10"
	req, _ := json.Marshal(domain.BatchRequest{ProjectID: "p1"})
	summary, _ := json.Marshal(domain.Summary{BatchID: id, Counts: domain.BatchCounts{Succeeded: 1}})
	exec := &stubExecutor{row: []any{id, "p1", "SUCCEEDED", req, summary, "", 1, time.Now(), time.Now()}}

	b, err := NewQueue(exec).Get(context.Background(), "p1", id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, b.Status)
	require.NotNil(t, b.Summary)
	assert.Equal(t, 1, b.Summary.Counts.Succeeded)

	_, err = NewQueue(&stubExecutor{err: pgx.ErrNoRows}).Get(context.Background(), "p1", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = NewQueue(exec).Get(context.Background(), "p1", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequeueStale(t *testing.T) {
	exec := &stubExecutor{affected: 3}
	n, err := NewQueue(exec).RequeueStale(context.Background(), 10*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []any{600, 3}, exec.args[0])
}

type fakeSource struct {
	batches  []*Batch
	finished map[string]error
}

func (f *fakeSource) Claim(context.Context) (*Batch, error) {
	if len(f.batches) == 0 {
		return nil, ErrEmpty
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeSource) Finish(_ context.Context, id string, _ *domain.Summary, runErr error) error {
	f.finished[id] = runErr
	return nil
}

func (f *fakeSource) RequeueStale(context.Context, time.Duration, int) (int64, error) {
	return 0, nil
}

type planFunc func(context.Context, domain.BatchRequest) (*domain.BatchRun, error)

func (f planFunc) Plan(ctx context.Context, req domain.BatchRequest) (*domain.BatchRun, error) {
	return f(ctx, req)
}

type runFunc func(context.Context, *domain.BatchRun, progress.Sink) (*domain.Summary, error)

func (f runFunc) Run(ctx context.Context, run *domain.BatchRun, sink progress.Sink) (*domain.Summary, error) {
	return f(ctx, run, sink)
}

func TestWorkerProcessOne(t *testing.T) {
	src := &fakeSource{
		batches: []*Batch{
			{ID: "b1", ProjectID: "p1", Request: domain.BatchRequest{ProjectID: "p1", Product: "sns"}},
			{ID: "b2", ProjectID: "p1", Request: domain.BatchRequest{ProjectID: "p1"}},
		},
		finished: make(map[string]error),
	}
	var ranIDs, sinkIDs []string
	w := &Worker{
		Queue: src,
		Planner: planFunc(func(_ context.Context, req domain.BatchRequest) (*domain.BatchRun, error) {
			if req.Product == "" {
				return nil, fmt.Errorf("%w: unknown product", domain.ErrPlannerValidation)
			}
			return domain.NewBatchRun("planned", req.ProjectID, req.Product, "image", nil), nil
		}),
		Runner: runFunc(func(_ context.Context, run *domain.BatchRun, sink progress.Sink) (*domain.Summary, error) {
			ranIDs = append(ranIDs, run.ID)
			return &domain.Summary{BatchID: run.ID}, sink.Close()
		}),
		Sinks: func(id string) progress.Sink {
			sinkIDs = append(sinkIDs, id)
			return progress.NewRecorder()
		},
		Logger: zerolog.Nop(),
	}

	for i := 0; i < 2; i++ {
		ok, err := w.ProcessOne(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"b1"}, ranIDs)
	assert.Equal(t, []string{"b1"}, sinkIDs)
	assert.NoError(t, src.finished["b1"])
	assert.ErrorIs(t, src.finished["b2"], domain.ErrPlannerValidation)
}
