// Package engine executes planned batches: it resolves prompts and adaptors
// per job at execution time, runs jobs with a bounded worker pool, persists
// each item as it settles and streams ordered progress events to a sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"genstudio/internal/adaptor"
	"genstudio/internal/domain"
	"genstudio/internal/domain/jsoncfg"
	"genstudio/internal/progress"
	"genstudio/internal/resolver"
)

const (
	DefaultConcurrency    = 4
	DefaultAdaptorTimeout = 120 * time.Second
	DefaultPersistTimeout = 15 * time.Second
)

// Config holds process-level execution limits.
type Config struct {
	// Concurrency caps executing jobs across every batch of the engine.
	Concurrency    int
	AdaptorTimeout time.Duration
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.AdaptorTimeout <= 0 {
		c.AdaptorTimeout = DefaultAdaptorTimeout
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	return c
}

// PromptSource resolves the effective template of a job.
type PromptSource interface {
	ResolveID(ctx context.Context, stageType, promptID, projectID string) (*resolver.ResolvedTemplateRef, error)
}

// ModelSource resolves the adaptor of a job.
type ModelSource interface {
	ResolveFor(ctx context.Context, projectID, stageType, promptID string, capability domain.Capability, explicit *domain.ModelConfig) (*resolver.Handle, error)
}

// ItemSaver persists one item record.
type ItemSaver interface {
	SaveItem(ctx context.Context, rec domain.ItemRecord) error
}

// Engine runs batches. One Engine is shared by every caller of a process so
// the concurrency cap applies globally.
type Engine struct {
	prompts PromptSource
	models  ModelSource
	items   ItemSaver
	cfg     Config
	sem     *semaphore.Weighted
	logger  zerolog.Logger
	metrics *Metrics
}

// Option customises an Engine.
type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(prompts PromptSource, models ModelSource, items ItemSaver, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		prompts: prompts,
		models:  models,
		items:   items,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

type task struct {
	job       domain.GenerationJob
	projectID string
	override  *domain.ModelConfig
	vars      map[string]any
	locale    string
}

type completion struct {
	jobID     string
	result    *domain.JobResult
	err       error
	adaptorID string
	modelID   string
	source    domain.ModelSource
	elapsed   time.Duration
}

// Run executes run to completion and streams its events to sink, which is
// closed before Run returns. The returned error is non-nil only for a
// batch-fatal failure; job failures are reported in the summary.
//
// Cancelling ctx or the sink going away stops new jobs from starting. Jobs
// already executing finish and are persisted.
func (e *Engine) Run(ctx context.Context, run *domain.BatchRun, sink progress.Sink) (*domain.Summary, error) {
	r := &runner{
		e:        e,
		ctx:      ctx,
		run:      run,
		sink:     sink,
		logger:   e.logger.With().Str("batch_id", run.ID).Str("project_id", run.ProjectID).Logger(),
		started:  time.Now().UTC(),
		results:  make(chan completion, e.cfg.Concurrency),
		executed: make(map[int]bool),
		failures: make(map[string]int),
	}
	return r.loop()
}

// runner is the coordinator of one batch. Only its goroutine touches run.
type runner struct {
	e      *Engine
	ctx    context.Context
	run    *domain.BatchRun
	sink   progress.Sink
	logger zerolog.Logger

	started  time.Time
	seq      int
	closed   bool
	detached bool
	stopping bool
	fatal    error

	queue    []*domain.GenerationJob
	inflight int
	results  chan completion
	// executed marks items with at least one started job; only those are persisted.
	executed map[int]bool

	ran       int
	succeeded int
	// failures counts AdaptorUnavailable failures per adaptor id.
	failures map[string]int
}

func (r *runner) loop() (*domain.Summary, error) {
	r.emit(progress.EventStart, progress.StartData{
		BatchID:   r.run.ID,
		ProjectID: r.run.ProjectID,
		Product:   r.run.Product,
		Stage:     r.run.Stage,
		Items:     r.run.ItemCount(),
		Jobs:      len(r.run.Jobs),
	})
	r.logger.Debug().Int("jobs", len(r.run.Jobs)).Msg("engine: batch started")

	r.queue = r.run.Ready()
	acquireCtx, cancelAcquire := context.WithCancel(context.WithoutCancel(r.ctx))
	slots := make(chan error, 1)
	acquiring := false
	defer func() {
		cancelAcquire()
		if acquiring {
			if err := <-slots; err == nil {
				r.e.sem.Release(1)
			}
		}
	}()

	sinkDone := r.sink.Done()
	ctxDone := r.ctx.Done()
	for {
		r.drain()
		r.pollStop()
		for !r.stopping && len(r.queue) > 0 && !acquiring && r.e.sem.TryAcquire(1) {
			r.launch()
		}
		if !r.stopping && len(r.queue) > 0 && !acquiring {
			acquiring = true
			go func() { slots <- r.e.sem.Acquire(acquireCtx, 1) }()
		}
		if r.inflight == 0 && (len(r.queue) == 0 || r.stopping) {
			break
		}

		select {
		case err := <-slots:
			acquiring = false
			if err != nil {
				continue
			}
			r.drain()
			r.pollStop()
			if r.stopping || len(r.queue) == 0 {
				r.e.sem.Release(1)
				continue
			}
			r.launch()
		case c := <-r.results:
			r.inflight--
			r.settle(c)
		case <-sinkDone:
			sinkDone = nil
			r.detach("consumer disconnected")
		case <-ctxDone:
			ctxDone = nil
			r.detach("request cancelled")
		}
	}
	return r.finish()
}

// drain settles every completion already delivered. Workers send before
// releasing their slot, so a freshly acquired slot never overtakes the
// completion that freed it.
func (r *runner) drain() {
	for {
		select {
		case c := <-r.results:
			r.inflight--
			r.settle(c)
		default:
			return
		}
	}
}

// pollStop notices a gone consumer before any dispatch decision.
func (r *runner) pollStop() {
	select {
	case <-r.sink.Done():
		r.detach("consumer disconnected")
	default:
	}
	if r.ctx.Err() != nil {
		r.detach("request cancelled")
	}
}

func (r *runner) detach(reason string) {
	if r.stopping && r.detached {
		return
	}
	if !r.detached {
		r.logger.Info().Str("reason", reason).Int("in_flight", r.inflight).Msg("engine: no new jobs will start")
	}
	r.detached = true
	r.stopping = true
}

// launch starts the first queued job. The caller holds a semaphore slot.
func (r *runner) launch() {
	job := r.queue[0]
	r.queue = r.queue[1:]
	if err := r.run.Start(job.ID); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: cannot start job")
		r.e.sem.Release(1)
		return
	}
	r.inflight++
	r.executed[job.ItemIndex] = true
	r.e.metrics.jobStarted()
	t := task{
		job:       *job,
		projectID: r.run.ProjectID,
		override:  r.run.ModelOverride,
		vars:      r.varsFor(job),
		locale:    r.run.Locale,
	}
	r.logger.Debug().Str("job_id", job.ID).Str("item_id", job.ItemID).Str("step", job.Step).Msg("engine: job running")
	go r.e.execute(r.ctx, t, r.results)
}

// varsFor builds the prompt variables of job: its input, the locale and the
// output of every predecessor under the predecessor's step name.
func (r *runner) varsFor(job *domain.GenerationJob) map[string]any {
	vars := maps.Clone(job.Input)
	if vars == nil {
		vars = make(map[string]any)
	}
	vars["itemId"] = job.ItemID
	if _, ok := vars["locale"]; !ok {
		locale := r.run.Locale
		if locale == "" {
			locale = jsoncfg.DefaultLocale
		}
		vars["locale"] = locale
	}
	for _, id := range job.Predecessors {
		if pred := r.run.Job(id); pred != nil {
			vars[pred.Step] = pred.Result.Output()
		}
	}
	return vars
}

// execute runs one task. The completion is sent before the slot is released.
func (e *Engine) execute(ctx context.Context, t task, out chan<- completion) {
	defer e.sem.Release(1)
	start := time.Now()
	c := e.generate(ctx, t)
	c.elapsed = time.Since(start)
	out <- c
}

func (e *Engine) generate(ctx context.Context, t task) completion {
	job := t.job
	c := completion{jobID: job.ID}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AdaptorTimeout)
	defer cancel()

	ref, err := e.prompts.ResolveID(callCtx, job.StageType, job.PromptID, t.projectID)
	if err != nil {
		c.err = err
		return c
	}
	handle, err := e.models.ResolveFor(callCtx, t.projectID, job.StageType, job.PromptID, job.Capability, t.override)
	if err != nil {
		c.err = err
		c.adaptorID = domain.AdaptorIDOf(err)
		return c
	}
	c.adaptorID, c.modelID, c.source = handle.AdaptorID, handle.ModelID, handle.Source

	opts := jsoncfg.OptionsFromInput(job.Input)
	opts.Normalize(t.locale)
	if err := opts.Validate(); err != nil {
		c.err = fmt.Errorf("%w: invalid options: %v", domain.ErrProviderFailure, err)
		return c
	}
	res, err := handle.Generate(callCtx, job.Capability, adaptor.Request{
		Prompt:  ref.Render(t.vars),
		Options: opts,
	})
	if err != nil {
		if domain.KindOf(err) == domain.ErrorKindProviderFailure && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrAdaptorTimeout, err)
		}
		c.err = err
		return c
	}
	c.result = res
	return c
}

// settle applies one completion: transition, persistence, then events.
func (r *runner) settle(c completion) {
	job := r.run.Job(c.jobID)
	job.AdaptorID, job.ModelID, job.ModelSource = c.adaptorID, c.modelID, c.source
	r.ran++

	var cascaded []*domain.GenerationJob
	if c.err == nil {
		ready, err := r.run.Complete(job.ID, c.result)
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: complete transition rejected")
		}
		r.queue = append(r.queue, ready...)
		r.succeeded++
		r.logger.Debug().Str("job_id", job.ID).Str("item_id", job.ItemID).Dur("elapsed", c.elapsed).Msg("engine: job done")
	} else {
		kind := domain.KindOf(c.err)
		var err error
		cascaded, err = r.run.Fail(job.ID, kind, c.err.Error())
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("engine: fail transition rejected")
		}
		if kind == domain.ErrorKindAdaptorUnavailable {
			r.failures[c.adaptorID]++
		}
		r.logger.Warn().Err(c.err).
			Str("job_id", job.ID).
			Str("item_id", job.ItemID).
			Str("step", job.Step).
			Str("error_kind", string(kind)).
			Int("cascaded", len(cascaded)).
			Msg("engine: job failed")
	}
	r.e.metrics.jobSettled(job, c.elapsed)
	for _, d := range cascaded {
		r.e.metrics.jobSkipped(d)
	}

	if c.err != nil && domain.IsBatchFatal(c.err) && r.fatal == nil {
		r.abort(c.err)
	}

	r.persist(job.ItemIndex)
	if r.fatal != nil {
		return
	}
	counts := r.run.Counts()
	total := len(r.run.Jobs)
	percent := 100
	if total > 0 {
		percent = (counts.Succeeded + counts.Failed) * 100 / total
	}
	r.emit(progress.EventProgress, progress.ProgressData{
		Message: fmt.Sprintf("%s %s for item %s (%d/%d)", job.Step, job.Status, job.ItemID, counts.Succeeded+counts.Failed, total),
		Percent: percent,
		JobID:   job.ID,
		ItemID:  job.ItemID,
		Step:    job.Step,
	})
	r.emit(progress.EventItemResult, progress.ItemResultData{
		JobID:     job.ID,
		ItemID:    job.ItemID,
		ItemIndex: job.ItemIndex,
		Step:      job.Step,
		Status:    job.Status,
		Result:    job.Result,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	})
}

// abort fails every pending job, emits the single fatal event and closes
// the sink. In-flight jobs drain silently.
func (r *runner) abort(cause error) {
	r.fatal = cause
	r.stopping = true
	r.queue = nil
	aborted := r.run.Abort("batch aborted: " + cause.Error())
	for _, j := range aborted {
		r.e.metrics.jobSkipped(j)
	}
	r.persistJobs(aborted)
	r.logger.Warn().Err(cause).Int("aborted", len(aborted)).Msg("engine: batch-fatal error")
	r.emit(progress.EventFatalError, progress.FatalData{Message: cause.Error(), Kind: domain.KindOf(cause)})
	r.closeSink()
}

// persist saves the record of one item. It runs even after the consumer
// went away.
func (r *runner) persist(itemIndex int) {
	if r.e.items == nil || !r.executed[itemIndex] {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), r.e.cfg.PersistTimeout)
	defer cancel()
	rec := r.run.ItemRecord(itemIndex)
	if err := r.e.items.SaveItem(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Str("item_id", rec.ItemID).Msg("engine: persist item failed")
	}
}

// persistJobs re-saves the items of jobs settled without running.
func (r *runner) persistJobs(jobs []*domain.GenerationJob) {
	seen := make(map[int]bool)
	for _, j := range jobs {
		if !seen[j.ItemIndex] {
			seen[j.ItemIndex] = true
			r.persist(j.ItemIndex)
		}
	}
}

func (r *runner) finish() (*domain.Summary, error) {
	if !r.run.IsTerminal() {
		blocked := r.run.FailBlocked()
		if !r.run.IsTerminal() {
			reason := "batch stopped before job started"
			if r.fatal != nil {
				reason = "batch aborted: " + r.fatal.Error()
			}
			blocked = append(blocked, r.run.Abort(reason)...)
		}
		for _, j := range blocked {
			r.e.metrics.jobSkipped(j)
		}
		r.persistJobs(blocked)
	}

	if r.fatal == nil {
		if id, ok := r.unavailableEverywhere(); ok {
			r.fatal = domain.NewAdaptorUnavailable(id, "", "failed for every job in the batch")
		}
	}

	summary := &domain.Summary{
		BatchID:    r.run.ID,
		ProjectID:  r.run.ProjectID,
		Product:    r.run.Product,
		Stage:      r.run.Stage,
		Status:     r.run.Status,
		Counts:     r.run.Counts(),
		Items:      r.run.Outcomes(),
		Detached:   r.detached,
		StartedAt:  r.started,
		FinishedAt: time.Now().UTC(),
	}

	outcome := "complete"
	switch {
	case r.fatal != nil:
		outcome = "fatal"
		summary.Fatal = r.fatal.Error()
		if !r.closed {
			r.emit(progress.EventFatalError, progress.FatalData{Message: r.fatal.Error(), Kind: domain.KindOf(r.fatal), Summary: summary})
		}
	case r.detached:
		outcome = "detached"
		r.emit(progress.EventComplete, summary)
	default:
		r.emit(progress.EventComplete, summary)
	}
	r.closeSink()
	r.e.metrics.batchFinished(outcome)
	r.logger.Info().
		Str("outcome", outcome).
		Int("succeeded", summary.Counts.Succeeded).
		Int("failed", summary.Counts.Failed).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("engine: batch finished")

	if r.fatal != nil {
		return summary, r.fatal
	}
	return summary, nil
}

// unavailableEverywhere reports whether every executed job failed with
// AdaptorUnavailable for one adaptor and nothing succeeded.
func (r *runner) unavailableEverywhere() (string, bool) {
	if r.ran == 0 || r.succeeded > 0 || len(r.failures) != 1 {
		return "", false
	}
	for id, n := range r.failures {
		if n == r.ran {
			return id, true
		}
	}
	return "", false
}

func (r *runner) emit(name string, data any) {
	if r.closed {
		return
	}
	select {
	case <-r.sink.Done():
		return
	default:
	}
	r.seq++
	err := r.sink.Emit(progress.Event{
		Name:    name,
		Seq:     r.seq,
		BatchID: r.run.ID,
		At:      time.Now().UTC(),
		Data:    data,
	})
	if err != nil {
		r.logger.Debug().Err(err).Str("event", name).Msg("engine: emit failed")
	}
}

func (r *runner) closeSink() {
	if r.closed {
		return
	}
	r.closed = true
	if err := r.sink.Close(); err != nil {
		r.logger.Debug().Err(err).Msg("engine: sink close failed")
	}
}
