package progress

import (
	"encoding/json"
	"fmt"
	"sync"
)

// SubjectPrefix roots every batch subject.
const SubjectPrefix = "studio.batches"

// Publisher is the slice of *nats.Conn the NATS sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// Subject returns the subject an event of batchID is published on.
func Subject(batchID, event string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, batchID, event)
}

// NATSSink publishes each event as JSON on studio.batches.<batch>.<event>.
type NATSSink struct {
	pub     Publisher
	batchID string

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewNATSSink(pub Publisher, batchID string) *NATSSink {
	return &NATSSink{pub: pub, batchID: batchID, done: make(chan struct{})}
}

func (s *NATSSink) Emit(e Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("progress: encode %s: %w", e.Name, err)
	}
	if err := s.pub.Publish(Subject(s.batchID, e.Name), data); err != nil {
		return fmt.Errorf("progress: publish %s: %w", e.Name, err)
	}
	return nil
}

// Close flushes buffered publishes. The connection stays open.
func (s *NATSSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.pub.Flush()
}

func (s *NATSSink) Done() <-chan struct{} { return s.done }
