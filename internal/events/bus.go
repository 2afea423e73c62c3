package events

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// EventStore defines the interface for persisting events
type EventStore interface {
	Save(event *Event) error
	GetPending(target string, types []EventType) ([]*Event, error)
	MarkDelivered(eventID string) error
}

// Backpressure configuration constants
const (
	// MaxBackpressureRetries is the number of times to retry sending before dropping
	MaxBackpressureRetries = 3
	// BackpressureRetryDelay is the delay between retry attempts
	BackpressureRetryDelay = 10 * time.Millisecond
	// sinkBufferSize bounds how many pending events a registered client
	// can queue before backpressure retries kick in.
	sinkBufferSize = 100
)

// client is one registered sink plus the set of channels it has opted
// into. A client receives an event if the event's channel is in this
// set, or if the client subscribed to ChannelAll.
type client struct {
	sink     chan Event
	channels map[string]struct{}
}

// Bus is the Subscription Hub: callers register a named client with a
// single sink, subscribe that client to zero or more channels, and
// events are broadcast to every matching sink. One slow or
// disconnected client never blocks another.
type Bus struct {
	mu            sync.RWMutex
	clients       map[string]*client
	store         EventStore
	droppedEvents uint64
}

// NewBus creates a new event bus
func NewBus(store EventStore) *Bus {
	return &Bus{
		clients: make(map[string]*client),
		store:   store,
	}
}

// Register creates (or replaces) clientID's sink and returns the
// channel it will receive events on. Re-registering an existing
// clientID closes its prior sink and drops its subscriptions, matching
// the "replacing a prior registration for the same client" contract.
func (b *Bus) Register(clientID string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, exists := b.clients[clientID]; exists {
		close(old.sink)
	}
	c := &client{
		sink:     make(chan Event, sinkBufferSize),
		channels: make(map[string]struct{}),
	}
	b.clients[clientID] = c
	return c.sink
}

// Unregister drops clientID and every channel subscription it held,
// closing its sink. It is a no-op if clientID was never registered.
func (b *Bus) Unregister(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.clients[clientID]
	if !exists {
		return
	}
	delete(b.clients, clientID)
	close(c.sink)
}

// Subscribe adds channel to clientID's subscription set. Subscribing to
// a channel it is already subscribed to is a no-op.
func (b *Bus) Subscribe(clientID, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.clients[clientID]
	if !exists {
		return fmt.Errorf("client %s is not registered", clientID)
	}
	c.channels[channel] = struct{}{}
	return nil
}

// Unsubscribe removes channel from clientID's subscription set. It is a
// no-op if clientID was never subscribed to channel.
func (b *Bus) Unsubscribe(clientID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.clients[clientID]
	if !exists {
		return
	}
	delete(c.channels, channel)
}

// Broadcast sends event to every registered client, regardless of its
// channel subscriptions.
func (b *Bus) Broadcast(event *Event) {
	b.persist(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, c := range b.clients {
		b.sendWithBackpressure(id, c, event)
	}
}

// BroadcastToChannel sends event to every client subscribed to channel,
// plus every client subscribed to ChannelAll.
func (b *Bus) BroadcastToChannel(channel string, event *Event) {
	b.persist(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, c := range b.clients {
		_, direct := c.channels[channel]
		_, all := c.channels[ChannelAll]
		if direct || all {
			b.sendWithBackpressure(id, c, event)
		}
	}
}

// SendToClient delivers event straight to clientID's sink, bypassing
// its channel subscriptions entirely. Returns an error if clientID is
// not registered.
func (b *Bus) SendToClient(clientID string, event *Event) error {
	b.mu.RLock()
	c, exists := b.clients[clientID]
	b.mu.RUnlock()
	if !exists {
		return fmt.Errorf("client %s is not registered", clientID)
	}

	b.persist(event)
	b.sendWithBackpressure(clientID, c, event)
	return nil
}

// Publish routes event to its target channel: ChannelAll events reach
// every registered client via Broadcast, everything else reaches
// clients subscribed to that specific channel via BroadcastToChannel.
func (b *Bus) Publish(event *Event) {
	if event.Target == ChannelAll || event.Target == "" {
		b.Broadcast(event)
		return
	}
	b.BroadcastToChannel(event.Target, event)
}

func (b *Bus) persist(event *Event) {
	if b.store == nil {
		return
	}
	if err := b.store.Save(event); err != nil {
		log.Printf("[EVENTS] ERROR: Failed to persist event to store: type=%s, target=%s, id=%s, error=%v",
			event.Type, event.Target, event.ID, err)
	}
}

// sendWithBackpressure attempts to send an event to a client's sink with
// retries. If the channel is full, it retries a few times before logging
// and dropping the event. The event is still persisted to the store (if
// available) and can be retrieved later.
func (b *Bus) sendWithBackpressure(clientID string, c *client, event *Event) {
	// First attempt - non-blocking
	select {
	case c.sink <- *event:
		return // Success on first try
	default:
		// Channel full, apply backpressure with retries
	}

	// Retry with brief delays to allow channel to drain
	for retry := 1; retry <= MaxBackpressureRetries; retry++ {
		time.Sleep(BackpressureRetryDelay)
		select {
		case c.sink <- *event:
			log.Printf("[EVENTS] Event delivered after %d retry(ies): type=%s, target=%s, client=%s, id=%s",
				retry, event.Type, event.Target, clientID, event.ID)
			return
		default:
			// Still full, continue retrying
		}
	}

	// All retries exhausted, drop the event
	dropped := atomic.AddUint64(&b.droppedEvents, 1)
	log.Printf("[EVENTS] WARNING: Dropped event after %d retries (channel full): type=%s, target=%s, source=%s, client=%s, id=%s (total dropped: %d)",
		MaxBackpressureRetries, event.Type, event.Target, event.Source, clientID, event.ID, dropped)
}

// GetPendingEvents retrieves pending events from the store for a specific target
func (b *Bus) GetPendingEvents(target string, types []EventType) ([]*Event, error) {
	if b.store == nil {
		return nil, nil
	}

	return b.store.GetPending(target, types)
}

// MarkDelivered marks an event as delivered so it won't be returned by GetPendingEvents
func (b *Bus) MarkDelivered(eventID string) error {
	if b.store == nil {
		return nil
	}

	return b.store.MarkDelivered(eventID)
}

// DroppedEventCount returns the total number of events that were dropped
// due to full subscriber channels
func (b *Bus) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&b.droppedEvents)
}
