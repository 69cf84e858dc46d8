// Package hub fans decoded events out to subscribed client connections.
// Each connection holds at most one subscription per topic and receives
// events through its own bounded queue, so a stalled consumer only loses
// its own messages and never blocks the publisher or other subscribers.
package hub

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names an event stream a connection can subscribe to.
type Topic string

const (
	TopicPackets  Topic = "packets"
	TopicStations Topic = "stations"
	TopicWeather  Topic = "weather"
)

// ValidTopic reports whether t names a known topic.
func ValidTopic(t Topic) bool {
	return t == TopicPackets || t == TopicStations || t == TopicWeather
}

// Event is one deliverable item. Source and PacketType carry the fields
// filters match against; Payload is the value serialized to the client.
type Event struct {
	Topic      Topic     `json:"topic"`
	Kind       string    `json:"type"`
	Source     string    `json:"-"`
	PacketType string    `json:"-"`
	Payload    any       `json:"data"`
	Time       time.Time `json:"timestamp"`
}

// Filter narrows which events on a topic reach a subscriber. The zero value
// matches everything.
type Filter struct {
	CallsignPrefix string   `json:"callsign_prefix,omitempty"`
	PacketTypes    []string `json:"packet_types,omitempty"`
}

// Matches reports whether ev passes the filter. Empty fields impose no
// constraint.
func (f Filter) Matches(ev Event) bool {
	if f.CallsignPrefix != "" {
		if !strings.HasPrefix(strings.ToUpper(ev.Source), strings.ToUpper(f.CallsignPrefix)) {
			return false
		}
	}
	if len(f.PacketTypes) > 0 {
		found := false
		for _, pt := range f.PacketTypes {
			if strings.EqualFold(pt, ev.PacketType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type subscriber struct {
	id     string
	queue  chan Event
	topics map[Topic]Filter
}

// Hub is the broadcaster registry. All registry mutation and delivery
// snapshots serialize on one mutex; sends into subscriber queues are
// non-blocking with drop-on-backpressure.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	queueSize   int
	drops       atomic.Uint64
	published   atomic.Uint64
}

// New creates a Hub. queueSize bounds each subscriber's delivery queue and
// should absorb normal feed burstiness; it defaults to 64 when zero.
func New(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		queueSize:   queueSize,
	}
}

// Register adds a connection and returns its delivery queue. The channel is
// closed by Unregister. Registering an existing id replaces the previous
// registration and closes its queue.
func (h *Hub) Register(id string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.subscribers[id]; ok {
		close(prev.queue)
	}
	sub := &subscriber{
		id:     id,
		queue:  make(chan Event, h.queueSize),
		topics: make(map[Topic]Filter),
	}
	h.subscribers[id] = sub
	return sub.queue
}

// Unregister removes a connection and closes its delivery queue. Unknown ids
// are a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.queue)
	}
}

// Subscribe upserts the connection's subscription for a topic; re-subscribing
// replaces the filter.
func (h *Hub) Subscribe(id string, topic Topic, f Filter) error {
	if !ValidTopic(topic) {
		return fmt.Errorf("hub: unknown topic %q", topic)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[id]
	if !ok {
		return fmt.Errorf("hub: unknown connection %q", id)
	}
	sub.topics[topic] = f
	return nil
}

// Unsubscribe removes the connection's subscription for a topic.
func (h *Hub) Unsubscribe(id string, topic Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(sub.topics, topic)
	}
}

// Publish delivers ev to every subscriber of ev.Topic whose filter matches.
// Delivery is a non-blocking queue send per subscriber; a full queue drops
// that one event for that one subscriber.
func (h *Hub) Publish(ev Event) {
	h.published.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers {
		filter, subscribed := sub.topics[ev.Topic]
		if !subscribed || !filter.Matches(ev) {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			h.drops.Add(1)
			log.Printf("hub: queue full for %s, dropping %s event", sub.id, ev.Topic)
		}
	}
}

// SubscriberCount returns the number of registered connections.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Stats returns total published events and per-subscriber drops.
func (h *Hub) Stats() (published, drops uint64) {
	return h.published.Load(), h.drops.Load()
}
