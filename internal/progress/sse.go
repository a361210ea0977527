package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSESink writes events as text/event-stream frames.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
	closed  bool
}

// NewSSESink prepares w for streaming. The sink is done when r's context is.
func NewSSESink(w http.ResponseWriter, r *http.Request) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("progress: streaming not supported")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher, done: r.Context().Done()}, nil
}

func (s *SSESink) Emit(e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("progress: encode %s: %w", e.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", e.Name, e.Seq, data); err != nil {
		return fmt.Errorf("progress: write %s: %w", e.Name, err)
	}
	s.flusher.Flush()
	return nil
}

func (s *SSESink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *SSESink) Done() <-chan struct{} { return s.done }
