// Package events provides the in-process publish/subscribe bus that decouples
// store mutation from rendering. Repositories publish after successful
// mutations; UI consumers subscribe and re-read through the query API.
package events

import "sync"

// Topics published by the repositories and the sync bridge.
const (
	TopicLoadConversation     = "minerva:load-conversation"
	TopicConversationAssigned = "minerva:conversation:assigned"
	TopicAPIStatusChanged     = "minerva:api-status-changed"
	TopicStoreChanged         = "minerva:store-changed"
)

// Event is a published notification with its topic and an optional payload.
type Event struct {
	Topic   string
	Payload any
}

// Handler consumes published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a minimal synchronous pub/sub bus. It is safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		list := b.subs[topic]
		for i, sub := range list {
			if sub.id == id {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every current subscriber of the topic, in
// subscription order. The handler list is copied so handlers may subscribe
// or unsubscribe during dispatch.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload}
	for _, sub := range list {
		sub.handler(evt)
	}
}

// SubscriberCount returns the number of active subscribers for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
