package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSSink writes events as JSON frames over a websocket connection. A read
// pump notices when the peer goes away.
type WSSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	once   sync.Once
	closed bool
}

// NewWSSink starts the read pump on conn. Frames received from the peer are
// discarded.
func NewWSSink(conn *websocket.Conn) *WSSink {
	s := &WSSink{conn: conn, done: make(chan struct{})}
	go s.readPump()
	return s
}

func (s *WSSink) readPump() {
	defer s.markDone()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WSSink) markDone() {
	s.once.Do(func() { close(s.done) })
}

func (s *WSSink) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteJSON(e); err != nil {
		s.markDone()
		return fmt.Errorf("progress: write %s: %w", e.Name, err)
	}
	return nil
}

// Close sends a normal close frame and releases the connection.
func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	err := s.conn.Close()
	s.markDone()
	return err
}

func (s *WSSink) Done() <-chan struct{} { return s.done }
