package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a session change.
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventConfirmed EventType = "confirmed"
)

// Event is one session-change notification.
type Event struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Type   EventType `json:"type"`
	At     time.Time `json:"at"`
}

// Broadcaster fans session-change events out to subscribers. Delivery is
// best effort: a subscriber that stops draining its channel loses events
// rather than blocking publishers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener. The caller must Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.Unlock()
}
