// Package bus is the topic-based publish/subscribe seam between the mesh
// core and its collaborators (UI, scripting). Publishing only queues;
// handlers run when the owner drains the bus on its tick, so subscribers can
// never re-enter the core mid-operation.
package bus

import "sync"

// Handler receives a published message.
type Handler func(topic string, payload any)

type subscription struct {
	id      int
	topic   string
	handler Handler
}

type message struct {
	topic   string
	payload any
}

// Bus is a topic-matched pub/sub queue. Safe for concurrent use; dispatch
// happens only from Dispatch.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    []subscription
	pending []message
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for an exact topic. Returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(topic string, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, topic: topic, handler: h})
	return b.nextID
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish queues a message. Handlers do not run until Dispatch.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	b.pending = append(b.pending, message{topic: topic, payload: payload})
	b.mu.Unlock()
}

// Dispatch delivers all queued messages to their subscribers and returns how
// many messages were delivered to at least one handler. Messages published
// from inside a handler are held for the next Dispatch.
func (b *Bus) Dispatch() int {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	delivered := 0
	for _, msg := range batch {
		matched := false
		for _, s := range subs {
			if s.topic == msg.topic {
				s.handler(msg.topic, msg.payload)
				matched = true
			}
		}
		if matched {
			delivered++
		}
	}
	return delivered
}
