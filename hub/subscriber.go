package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

const (
	// pingInterval is how often the keepalive pinger runs.
	pingInterval = 30 * time.Second
	// pingTimeout is how long a subscriber may stay silent before it is
	// terminated.
	pingTimeout = 120 * time.Second
	// writeWait bounds control frame writes.
	writeWait = 10 * time.Second
)

// Close reasons reported to the client.
const (
	CloseReasonPingTimeout    = "ping timeout"
	CloseReasonClaimConfirmed = "claim confirmed"
	CloseReasonSocketError    = "socket error"
	CloseReasonShutdown       = "shutdown"
)

// Conn is the subset of *websocket.Conn the hub needs. Tests substitute an
// in-memory implementation.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Subscriber is one attached client socket waiting for its claim to confirm.
type Subscriber struct {
	hub      *Hub
	conn     Conn
	claimIdx int64

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
	done     chan struct{}
}

func newSubscriber(h *Hub, conn Conn, claimIdx int64) *Subscriber {
	return &Subscriber{
		hub:      h,
		conn:     conn,
		claimIdx: claimIdx,
		lastSeen: time.Now(),
		done:     make(chan struct{}),
	}
}

// start launches the reader and keepalive pinger goroutines.
func (s *Subscriber) start() {
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	go s.readLoop()
	go s.pingLoop()
}

// touch records socket liveness.
func (s *Subscriber) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// readLoop drains inbound messages; any received frame counts as liveness.
// A read error closes the subscriber.
func (s *Subscriber) readLoop() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.Close(CloseReasonSocketError)
			return
		}
		s.touch()
	}
}

// pingLoop sends a ping every pingInterval and terminates the subscriber if
// no ping/pong activity has been observed for pingTimeout.
func (s *Subscriber) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			stale := time.Since(s.lastSeen) > pingTimeout
			s.mu.Unlock()
			if stale {
				s.Close(CloseReasonPingTimeout)
				return
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close(CloseReasonSocketError)
				return
			}
		case <-s.done:
			return
		}
	}
}

// deliver writes an update message. When the update satisfies the
// subscriber's claim, the subscription terminates with "claim confirmed".
func (s *Subscriber) deliver(p types.Progress) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	err := s.conn.WriteJSON(Message{Action: "update", Data: p})
	s.mu.Unlock()
	if err != nil {
		s.Close(CloseReasonSocketError)
		return
	}
	if s.claimIdx > 0 && p.ConfirmedIdx >= s.claimIdx {
		s.Close(CloseReasonClaimConfirmed)
	}
}

// Close terminates the subscription with the given reason, closes the socket
// and removes the subscriber from the hub. Idempotent.
func (s *Subscriber) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.Debugw("failed to write close frame", "reason", reason, "error", err)
	}
	if err := s.conn.Close(); err != nil {
		log.Debugw("failed to close subscriber socket", "reason", reason, "error", err)
	}
	s.hub.remove(s)
	log.Debugw("notification subscriber closed", "claimIdx", s.claimIdx, "reason", reason)
}

// Closed reports whether the subscription has terminated.
func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
