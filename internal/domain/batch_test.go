package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStepBatch() *BatchRun {
	return NewBatchRun("b1", "p1", "story", "animation", []*GenerationJob{
		{ID: "a1", ItemID: "anim-1", ItemIndex: 0, Step: "analyze", Capability: CapabilityText},
		{ID: "r1", ItemID: "anim-1", ItemIndex: 0, Step: "render", Capability: CapabilityVideo, Predecessors: []string{"a1"}},
		{ID: "a2", ItemID: "anim-2", ItemIndex: 1, Step: "analyze", Capability: CapabilityText},
		{ID: "r2", ItemID: "anim-2", ItemIndex: 1, Step: "render", Capability: CapabilityVideo, Predecessors: []string{"a2"}},
	})
}

func ids(jobs []*GenerationJob) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}

func TestBatchRunReadyOnlyUnblocked(t *testing.T) {
	b := twoStepBatch()
	assert.Equal(t, BatchStatusAccepted, b.Status)
	assert.Equal(t, []string{"a1", "a2"}, ids(b.Ready()))
	assert.Equal(t, 2, b.ItemCount())
}

func TestBatchRunStartRequiresPredecessors(t *testing.T) {
	b := twoStepBatch()
	err := b.Start("r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, JobStatusPending, b.Job("r1").Status)
}

func TestBatchRunCompleteUnblocksDependent(t *testing.T) {
	b := twoStepBatch()
	require.NoError(t, b.Start("a1"))
	assert.Equal(t, BatchStatusExecuting, b.Status)

	ready, err := b.Complete("a1", &JobResult{Text: "scene"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(ready))
	require.NoError(t, b.Start("r1"))
}

func TestBatchRunFailCascadesWithoutRunning(t *testing.T) {
	b := twoStepBatch()
	require.NoError(t, b.Start("a1"))

	cascaded, err := b.Fail("a1", ErrorKindProviderFailure, "boom")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(cascaded))

	r1 := b.Job("r1")
	assert.Equal(t, JobStatusFailed, r1.Status)
	assert.Equal(t, ErrorKindDependencyFailed, r1.ErrorKind)
	assert.True(t, r1.StartedAt.IsZero(), "cascade-failed job must never start")

	assert.Equal(t, BatchCounts{Failed: 2, Pending: 2}, b.Counts())
	assert.False(t, b.IsTerminal())
}

func TestBatchRunTerminalAndOutcomes(t *testing.T) {
	b := twoStepBatch()
	require.NoError(t, b.Start("a1"))
	_, err := b.Fail("a1", ErrorKindTemplateNotFound, "no template")
	require.NoError(t, err)

	require.NoError(t, b.Start("a2"))
	_, err = b.Complete("a2", &JobResult{Text: "scene"})
	require.NoError(t, err)
	require.NoError(t, b.Start("r2"))
	_, err = b.Complete("r2", &JobResult{VideoURL: "https://cdn/v.mp4"})
	require.NoError(t, err)

	require.True(t, b.IsTerminal())
	assert.Equal(t, BatchStatusTerminal, b.Status)

	outcomes := b.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, JobStatusFailed, outcomes[0].Status)
	assert.Equal(t, ErrorKindTemplateNotFound, outcomes[0].ErrorKind, "root cause wins over cascade")
	assert.Equal(t, JobStatusDone, outcomes[1].Status)
	assert.Equal(t, "https://cdn/v.mp4", outcomes[1].Result.Output())

	rec := b.ItemRecord(1)
	assert.Equal(t, "anim-2", rec.ItemID)
	assert.Equal(t, "b1", rec.BatchID)
	assert.Len(t, rec.Steps, 2)
	assert.Equal(t, "scene", rec.Steps["analyze"].Result.Text)
}

func TestBatchRunAbortFailsPending(t *testing.T) {
	b := twoStepBatch()
	require.NoError(t, b.Start("a1"))

	aborted := b.Abort("provider down")
	assert.Equal(t, []string{"r1", "a2", "r2"}, ids(aborted))
	assert.Equal(t, JobStatusRunning, b.Job("a1").Status, "in-flight jobs are left to drain")
	for _, j := range aborted {
		assert.Equal(t, ErrorKindAborted, j.ErrorKind)
	}
}

func TestBatchRunRetryResetsCascade(t *testing.T) {
	b := twoStepBatch()
	require.NoError(t, b.Start("a1"))
	_, err := b.Fail("a1", ErrorKindAdaptorTimeout, "timeout")
	require.NoError(t, err)

	require.Error(t, b.Retry("r1"), "dependent of a failed job cannot be retried alone")
	require.NoError(t, b.Retry("a1"))

	assert.Equal(t, JobStatusPending, b.Job("a1").Status)
	assert.Equal(t, JobStatusPending, b.Job("r1").Status)
	assert.Empty(t, b.Job("a1").Error)
	assert.Contains(t, ids(b.Ready()), "a1")
}

func TestBatchRunFailBlocked(t *testing.T) {
	b := twoStepBatch()
	b.Job("a1").Status = JobStatusFailed

	blocked := b.FailBlocked()
	assert.Equal(t, []string{"r1"}, ids(blocked))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, SeverityNone, Classify(nil))
	assert.Equal(t, SeverityRequest, Classify(ErrEmptyBatch))
	assert.Equal(t, SeverityBatch, Classify(&AdaptorError{AdaptorID: "gemini", Err: ErrProviderUnreachable}))
	assert.Equal(t, SeverityJob, Classify(ErrAdaptorTimeout))
	assert.Equal(t, SeverityJob, Classify(NewAdaptorUnavailable("x", CapabilityVideo, "")))
}

func TestKindOfAndAdaptorID(t *testing.T) {
	err := NewAdaptorUnavailable("qwen", CapabilityVideo, "capability not supported")
	assert.Equal(t, ErrorKindAdaptorUnavailable, KindOf(err))
	assert.Equal(t, "qwen", AdaptorIDOf(err))
	assert.Equal(t, ErrorKindProviderFailure, KindOf(errors.New("content policy")))
	assert.Equal(t, ErrorKindTemplateNotFound, KindOf(ErrTemplateNotFound))
}

func TestResolvedPromptText(t *testing.T) {
	assert.Equal(t, "sys\n\nuser", ResolvedPrompt{System: " sys ", User: "user"}.Text())
	assert.Equal(t, "user", ResolvedPrompt{User: "user"}.Text())
}

func TestParseCapability(t *testing.T) {
	assert.Equal(t, CapabilityImage, ParseCapability(" Image "))
	assert.False(t, ParseCapability("audio").IsValid())
}
