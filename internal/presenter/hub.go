package presenter

import (
	"sync"

	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
)

type EventType string

const (
	EventState   EventType = "state"
	EventAlert   EventType = "alert"
	EventPairing EventType = "pairing"
)

// Event is one message on the UI stream.
type Event struct {
	Type     EventType        `json:"type"`
	Snapshot *wallet.Snapshot `json:"snapshot,omitempty"`
	Button   *ButtonState     `json:"button,omitempty"`
	Message  string           `json:"message,omitempty"`
	URI      string           `json:"uri,omitempty"`
}

const subscriberBuffer = 16

// Hub fans events out to subscribers. Slow subscribers lose events rather
// than blocking the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	last *Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel primed with the latest state event, and a
// cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	if h.last != nil {
		ch <- *h.last
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Type == EventState {
		e := ev
		h.last = &e
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notify is a wallet.Notifier.
func (h *Hub) Notify(s wallet.Snapshot) {
	b := Button(s)
	h.Publish(Event{Type: EventState, Snapshot: &s, Button: &b})
}

// Last returns the most recent state event, if any.
func (h *Hub) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
