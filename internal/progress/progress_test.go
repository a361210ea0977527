package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESinkWritesFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	sink, err := NewSSESink(rec, req)
	require.NoError(t, err)
	require.NoError(t, sink.Emit(Event{Name: EventProgress, Seq: 2, Data: ProgressData{Message: "1/2", Percent: 50}}))
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Emit(Event{Name: EventComplete}), ErrClosed)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: progress\nid: 2\n")
	assert.Contains(t, body, `"percent":50`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestSSESinkDoneFollowsRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	sink, err := NewSSESink(httptest.NewRecorder(), req)
	require.NoError(t, err)

	cancel()
	select {
	case <-sink.Done():
	case <-time.After(time.Second):
		t.Fatal("sink not done after request cancel")
	}
	assert.ErrorIs(t, sink.Emit(Event{Name: EventProgress}), ErrClosed)
}

func TestWSSinkFramesAndPeerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sinks := make(chan *WSSink, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sinks <- NewWSSink(conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	sink := <-sinks

	require.NoError(t, sink.Emit(Event{Name: EventStart, BatchID: "b1", Data: StartData{Jobs: 3}}))
	var got struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, EventStart, got.Event)
	assert.Contains(t, string(got.Data), `"jobs":3`)

	require.NoError(t, client.Close())
	select {
	case <-sink.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not notice peer close")
	}
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Emit(Event{Name: EventComplete}), ErrClosed)
}

type stubPublisher struct {
	subjects []string
	payloads [][]byte
	flushed  bool
	err      error
}

func (p *stubPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *stubPublisher) Flush() error {
	p.flushed = true
	return nil
}

func TestNATSSinkSubjects(t *testing.T) {
	pub := &stubPublisher{}
	sink := NewNATSSink(pub, "b-42")

	require.NoError(t, sink.Emit(Event{Name: EventItemResult, BatchID: "b-42", Data: ItemResultData{ItemID: "a"}}))
	require.NoError(t, sink.Close())

	assert.Equal(t, []string{"studio.batches.b-42.itemResult"}, pub.subjects)
	assert.Contains(t, string(pub.payloads[0]), `"itemId":"a"`)
	assert.True(t, pub.flushed)
	assert.ErrorIs(t, sink.Emit(Event{Name: EventComplete}), ErrClosed)

	failing := NewNATSSink(&stubPublisher{err: errors.New("nats: connection closed")}, "b")
	assert.Error(t, failing.Emit(Event{Name: EventStart}))
}

func TestTeeFansOutAndFollowsPrimary(t *testing.T) {
	primary, secondary := NewRecorder(), NewRecorder()
	tee := NewTee(primary, secondary, NewLogSink(zerolog.Nop()))

	require.NoError(t, tee.Emit(Event{Name: EventStart}))
	require.NoError(t, secondary.Close())
	assert.Error(t, tee.Emit(Event{Name: EventComplete}))
	assert.Equal(t, []string{EventStart, EventComplete}, primary.Names())

	primary.Disconnect()
	select {
	case <-tee.Done():
	default:
		t.Fatal("tee should be done once the primary is")
	}
	require.NoError(t, tee.Close())
	assert.True(t, primary.Closed())
}

func TestRecorderHelpers(t *testing.T) {
	r := NewRecorder()
	var seen []string
	r.OnEmit = func(e Event) { seen = append(seen, e.Name) }
	_ = r.Emit(Event{Name: EventProgress})
	_ = r.Emit(Event{Name: EventItemResult})
	_ = r.Emit(Event{Name: EventProgress})

	assert.Len(t, r.Filter(EventProgress), 2)
	assert.Equal(t, seen, r.Names())
	assert.True(t, Event{Name: EventFatalError}.Terminal())
	assert.False(t, Event{Name: EventItemResult}.Terminal())
}
