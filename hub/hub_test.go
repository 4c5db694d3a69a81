package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gorilla/websocket"

	"github.com/cw-faucet/faucetd/types"
)

// fakeConn is an in-memory Conn capturing writes. Reads block until the
// connection is closed.
type fakeConn struct {
	mu       sync.Mutex
	writes   []Message
	controls []int
	closed   bool
	closeCh  chan struct{}
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{closeCh: make(chan struct{})}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	msg, ok := v.(Message)
	if !ok {
		return fmt.Errorf("unexpected message type %T", v)
	}
	f.writes = append(f.writes, msg)
	return nil
}

func (f *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closeCh
	return 0, nil, fmt.Errorf("connection closed")
}

func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestBroadcastDelivery(t *testing.T) {
	c := qt.New(t)
	h := New()

	conn := newFakeConn()
	sub := h.Subscribe(conn, 10)
	c.Assert(h.SubscriberCount(), qt.Equals, 1)

	h.Broadcast(types.Progress{ProcessedIdx: 3, ConfirmedIdx: 1})

	msgs := conn.messages()
	c.Assert(msgs, qt.HasLen, 1)
	c.Assert(msgs[0].Action, qt.Equals, "update")
	c.Assert(msgs[0].Data, qt.Equals, types.Progress{ProcessedIdx: 3, ConfirmedIdx: 1})
	c.Assert(sub.Closed(), qt.IsFalse)
}

func TestSubscribeReplaysLastBroadcast(t *testing.T) {
	c := qt.New(t)
	h := New()

	h.Broadcast(types.Progress{ProcessedIdx: 5, ConfirmedIdx: 2})

	conn := newFakeConn()
	h.Subscribe(conn, 10)

	msgs := conn.messages()
	c.Assert(msgs, qt.HasLen, 1)
	c.Assert(msgs[0].Data, qt.Equals, types.Progress{ProcessedIdx: 5, ConfirmedIdx: 2})
}

func TestSubscriberClosedOnClaimConfirmed(t *testing.T) {
	c := qt.New(t)
	h := New()

	conn := newFakeConn()
	sub := h.Subscribe(conn, 4)

	// watermark below the claim keeps the subscription open
	h.Broadcast(types.Progress{ProcessedIdx: 4, ConfirmedIdx: 3})
	c.Assert(sub.Closed(), qt.IsFalse)

	// reaching the claim index closes it
	h.Broadcast(types.Progress{ProcessedIdx: 5, ConfirmedIdx: 4})
	c.Assert(sub.Closed(), qt.IsTrue)
	c.Assert(conn.isClosed(), qt.IsTrue)
	c.Assert(h.SubscriberCount(), qt.Equals, 0)

	// the close frame carried the reason
	found := false
	for _, ct := range conn.controls {
		if ct == websocket.CloseMessage {
			found = true
		}
	}
	c.Assert(found, qt.IsTrue)
}

func TestBroadcastToleratesRemovalMidIteration(t *testing.T) {
	c := qt.New(t)
	h := New()

	// both subscribers close on the same broadcast; iterating over a
	// snapshot must deliver to each exactly once without panicking
	connA, connB := newFakeConn(), newFakeConn()
	h.Subscribe(connA, 1)
	h.Subscribe(connB, 1)
	c.Assert(h.SubscriberCount(), qt.Equals, 2)

	h.Broadcast(types.Progress{ProcessedIdx: 1, ConfirmedIdx: 1})

	c.Assert(h.SubscriberCount(), qt.Equals, 0)
	c.Assert(connA.messages(), qt.HasLen, 1)
	c.Assert(connB.messages(), qt.HasLen, 1)
}

func TestWriteErrorRemovesSubscriber(t *testing.T) {
	c := qt.New(t)
	h := New()

	conn := newFakeConn()
	conn.writeErr = fmt.Errorf("broken pipe")
	sub := h.Subscribe(conn, 10)

	h.Broadcast(types.Progress{ProcessedIdx: 1, ConfirmedIdx: 0})

	c.Assert(sub.Closed(), qt.IsTrue)
	c.Assert(h.SubscriberCount(), qt.Equals, 0)
}

func TestCloseIdempotent(t *testing.T) {
	c := qt.New(t)
	h := New()

	conn := newFakeConn()
	sub := h.Subscribe(conn, 10)
	sub.Close(CloseReasonShutdown)
	sub.Close(CloseReasonShutdown)
	c.Assert(h.SubscriberCount(), qt.Equals, 0)
}

func TestReset(t *testing.T) {
	c := qt.New(t)
	h := New()

	h.Broadcast(types.Progress{ProcessedIdx: 1, ConfirmedIdx: 0})
	c.Assert(h.LastBroadcast(), qt.IsNotNil)

	h.Reset()
	c.Assert(h.LastBroadcast(), qt.IsNil)

	// a new subscriber gets no replay after a reset
	conn := newFakeConn()
	h.Subscribe(conn, 10)
	c.Assert(conn.messages(), qt.HasLen, 0)
}
