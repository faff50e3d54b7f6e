package lifecycle

import (
	"sync"
	"time"
)

// Message is a typed broadcast between clients sharing one session.
type Message interface {
	isMessage()
}

// SessionRefreshed announces a new expiry after a successful refresh.
type SessionRefreshed struct {
	ExpiresAt time.Time
}

// SessionInvalidated tells peers the session is over.
type SessionInvalidated struct {
	Reason string
}

func (SessionRefreshed) isMessage()   {}
func (SessionInvalidated) isMessage() {}

// Broadcast is a local pub/sub channel. Delivery is synchronous, in no particular
// order, and never echoed back to the publisher.
//
// It also carries the session's refresh claim: at most one subscriber refreshes
// at a time, and peers wait for its SessionRefreshed instead of calling Refresh.
type Broadcast struct {
	mu          sync.RWMutex
	subscribers map[string]func(Message)
	refresher   string
}

func NewBroadcast() *Broadcast {
	return &Broadcast{subscribers: make(map[string]func(Message))}
}

// Subscribe registers fn under id, replacing any previous handler for that id.
func (b *Broadcast) Subscribe(id string, fn func(Message)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = fn
	return func() { b.Unsubscribe(id) }
}

func (b *Broadcast) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
	if b.refresher == id {
		b.refresher = ""
	}
}

// claimRefresh makes id the session's refresher. It fails while another id holds the claim.
func (b *Broadcast) claimRefresh(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refresher != "" && b.refresher != id {
		return false
	}
	b.refresher = id
	return true
}

func (b *Broadcast) releaseRefresh(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refresher == id {
		b.refresher = ""
	}
}

// Publish delivers m to every subscriber except from. Handlers run outside the lock.
func (b *Broadcast) Publish(from string, m Message) {
	b.mu.RLock()
	handlers := make([]func(Message), 0, len(b.subscribers))
	for id, fn := range b.subscribers {
		if id != from {
			handlers = append(handlers, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(m)
	}
}

func (b *Broadcast) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
