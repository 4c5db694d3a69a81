// Package hub implements the realtime notification bus that informs waiting
// clients of claim queue progress. Producers broadcast a progress watermark;
// each websocket subscriber receives updates until its own claim confirms.
package hub

import (
	"sync"

	"github.com/cw-faucet/faucetd/log"
	"github.com/cw-faucet/faucetd/types"
)

// Message is the JSON envelope sent to subscribers.
type Message struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// Hub is a process-wide list of subscribers plus the last broadcast
// watermark, replayed to new subscribers on attach.
type Hub struct {
	mu   sync.Mutex
	subs []*Subscriber
	last *types.Progress
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{}
}

// Broadcast replaces the last-broadcast slot and delivers an update message
// to every active subscriber. Subscribers may be removed concurrently, so
// delivery iterates over a snapshot of the list.
func (h *Hub) Broadcast(p types.Progress) {
	h.mu.Lock()
	h.last = &p
	snapshot := make([]*Subscriber, len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, sub := range snapshot {
		sub.deliver(p)
	}
}

// Reset clears the last-broadcast slot. Used when the pipeline shuts down.
func (h *Hub) Reset() {
	h.mu.Lock()
	h.last = nil
	h.mu.Unlock()
}

// LastBroadcast returns the last broadcast watermark, or nil if none.
func (h *Hub) LastBroadcast() *types.Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	p := *h.last
	return &p
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe attaches a subscriber interested in the given claim index. If a
// broadcast has already happened, the subscriber immediately receives the
// last value. The subscriber's keepalive pinger and reader are started.
func (h *Hub) Subscribe(conn Conn, claimIdx int64) *Subscriber {
	sub := newSubscriber(h, conn, claimIdx)

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	last := h.last
	h.mu.Unlock()

	log.Debugw("notification subscriber attached", "claimIdx", claimIdx)
	sub.start()
	if last != nil {
		sub.deliver(*last)
	}
	return sub
}

// remove detaches a subscriber from the list. Idempotent.
func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}
