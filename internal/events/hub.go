package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSubscriberBuffer bounds each subscriber's queue.
const DefaultSubscriberBuffer = 256

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Hub fans events out to live subscribers. Every subscriber owns a bounded
// queue; when it is full the event is dropped for that subscriber only, so a
// slow or absent reader never blocks a producer.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Publish never blocks.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:  h.nextID,
		hub: h,
		ch:  make(chan Event, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}

// Subscription is one observer's view of the live stream.
type Subscription struct {
	id      uint64
	hub     *Hub
	ch      chan Event
	dropped atomic.Uint64
	once    sync.Once
}

// Next blocks until an event arrives, the idle timeout elapses or ctx ends.
// A timeout returns ok=false with a nil error; callers use it to send a
// keep-alive.
func (s *Subscription) Next(ctx context.Context, idle time.Duration) (evt Event, ok bool, err error) {
	var timeout <-chan time.Time
	if idle > 0 {
		timer := time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	case evt, open := <-s.ch:
		if !open {
			return Event{}, false, ErrSubscriptionClosed
		}
		return evt, true, nil
	case <-timeout:
		return Event{}, false, nil
	}
}

// Dropped counts events discarded because this subscriber fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}
