package events

import (
	"strings"
	"sync"
)

// Publisher is the publishing side of the bus. Tasks and the runner depend on
// this rather than on *EventBus.
type Publisher interface {
	Publish(topic string, event Event)
}

// TopicOf derives the topic from an event's type prefix ("task.*" -> TopicTask).
func TopicOf(event Event) string {
	prefix, _, _ := strings.Cut(event.EventType(), ".")
	return prefix
}

// Emit publishes event on its own topic. A nil publisher is a no-op.
func Emit(p Publisher, event Event) {
	if p == nil {
		return
	}
	p.Publish(TopicOf(event), event)
}

// EventBus is a channel-based pub-sub event bus.
// Publishing never blocks: a full subscriber misses the event.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event
	dropped map[string]int // topic -> events dropped because a subscriber was full
	closed  bool
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:    make(map[string][]chan Event),
		dropped: make(map[string]int),
	}
}

func (b *EventBus) subscribe(topic string, all bool, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	if all {
		b.allSubs = append(b.allSubs, ch)
	} else {
		b.subs[topic] = append(b.subs[topic], ch)
	}
	return ch
}

// Subscribe returns a channel receiving events published to topic.
// bufSize defaults to 256 if <= 0.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	return b.subscribe(topic, false, bufSize)
}

// SubscribeAll returns a channel receiving events from every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	return b.subscribe("", true, bufSize)
}

// Publish sends event to the topic's subscribers and to every SubscribeAll channel.
func (b *EventBus) Publish(topic string, event Event) {
	// Write lock: the dropped counter is mutated below.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	deliver := func(ch chan Event) {
		select {
		case ch <- event:
		default:
			b.dropped[topic]++
		}
	}

	for _, ch := range b.subs[topic] {
		deliver(ch)
	}
	for _, ch := range b.allSubs {
		deliver(ch)
	}
}

// Dropped returns how many deliveries on topic were skipped because a
// subscriber's buffer was full.
func (b *EventBus) Dropped(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[topic]
}

// Close closes the bus and all subscriber channels. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
