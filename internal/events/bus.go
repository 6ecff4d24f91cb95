package events

import (
	"sync"
	"time"
)

// Bus fans domain messages out to topic subscribers and firehose
// subscribers. Publish never blocks; a subscriber that stops draining
// its channel loses messages, not the publisher.
type Bus struct {
	mu       sync.RWMutex
	byTopic  map[Event][]chan Message
	firehose []chan Message
	now      func() time.Time
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		byTopic: make(map[Event][]chan Message),
		now:     time.Now,
	}
}

// Subscribe registers a listener for one topic and returns the channel
// and an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	b.byTopic[e] = append(b.byTopic[e], ch)
	return ch, func() { b.drop(e, ch) }
}

// SubscribeAll registers a listener for every topic (the websocket
// stream's view) and returns the channel and an unsubscribe function.
func (b *Bus) SubscribeAll(buffer int) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	b.firehose = append(b.firehose, ch)
	return ch, func() { b.drop("", ch) }
}

// Publish stamps the message and fans it out to the topic's
// subscribers and every firehose subscriber.
func (b *Bus) Publish(msg Message) {
	if msg.At.IsZero() {
		msg.At = b.now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.byTopic[msg.Event] {
		deliver(ch, msg)
	}
	for _, ch := range b.firehose {
		deliver(ch, msg)
	}
}

func deliver(ch chan Message, msg Message) {
	select {
	case ch <- msg:
	default:
		// slow subscriber, message dropped
	}
}

// drop removes ch from its list and closes it. An empty topic means
// the firehose list.
func (b *Bus) drop(e Event, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.firehose
	if e != "" {
		list = b.byTopic[e]
	}
	for i, c := range list {
		if c == ch {
			close(c)
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if e != "" {
		b.byTopic[e] = list
	} else {
		b.firehose = list
	}
}
