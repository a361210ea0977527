package progress

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// LogSink writes every event to a logger.
type LogSink struct {
	logger zerolog.Logger
	once   sync.Once
	done   chan struct{}
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger, done: make(chan struct{})}
}

func (s *LogSink) Emit(e Event) error {
	ev := s.logger.Info()
	if e.Name == EventFatalError {
		ev = s.logger.Warn()
	}
	ev.Str("batch_id", e.BatchID).
		Str("event", e.Name).
		Int("seq", e.Seq).
		Interface("data", e.Data).
		Msg("batch event")
	return nil
}

func (s *LogSink) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *LogSink) Done() <-chan struct{} { return s.done }

// Tee fans events out to several sinks. Its Done follows the first sink,
// which is the consumer-facing one.
type Tee struct {
	sinks []Sink
}

func NewTee(primary Sink, others ...Sink) *Tee {
	return &Tee{sinks: append([]Sink{primary}, others...)}
}

func (t *Tee) Emit(e Event) error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) Close() error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) Done() <-chan struct{} { return t.sinks[0].Done() }

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
	once   sync.Once
	done   chan struct{}

	// OnEmit, when set, runs after each recorded event.
	OnEmit func(Event)
}

func NewRecorder() *Recorder {
	return &Recorder{done: make(chan struct{})}
}

func (r *Recorder) Emit(e Event) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.events = append(r.events, e)
	hook := r.OnEmit
	r.mu.Unlock()
	if hook != nil {
		hook(e)
	}
	return nil
}

// Disconnect simulates the consumer going away.
func (r *Recorder) Disconnect() {
	r.once.Do(func() { close(r.done) })
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Done() <-chan struct{} { return r.done }

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

// Filter returns the recorded events named name.
func (r *Recorder) Filter(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
