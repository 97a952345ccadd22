package events

import (
	"log/slog"
	"sync"
)

// Handler consumes events for one subscriber. Handlers run on the
// subscriber's own goroutine, one event at a time, in publish order.
type Handler func(Event)

// Bus is the in-process publish point for session and order events.
//
// Each subscriber gets an unbounded FIFO queue drained by a dedicated
// goroutine, so Publish never blocks and a slow subscriber only delays
// itself.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	name    string
	kinds   map[Kind]bool
	handler Handler
	q       *eventQueue
	done    chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscribe registers h for the given kinds, or for every kind when none
// are given. The returned function unsubscribes and waits for queued
// events to be delivered.
func (b *Bus) Subscribe(name string, h Handler, kinds ...Kind) func() {
	sub := &subscription{
		name:    name,
		handler: h,
		q:       newEventQueue(),
		done:    make(chan struct{}),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.q.Close()
		close(sub.done)
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.run()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.q.Close()
		<-sub.done
	}
}

// Publish enqueues e for every interested subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[e.Kind] {
			continue
		}
		sub.q.Enqueue(e)
	}
}

// Close stops accepting events, delivers what is already queued, and
// waits for every subscriber goroutine to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.q.Close()
	}
	for _, sub := range subs {
		<-sub.done
	}
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		s.drain()
		if _, open := <-s.q.Wait(); !open {
			s.drain()
			return
		}
	}
}

func (s *subscription) drain() {
	for {
		e, ok := s.q.TryDequeue()
		if !ok {
			return
		}
		s.deliver(e)
	}
}

func (s *subscription) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked",
				"subscriber", s.name,
				"kind", e.Kind,
				"panic", r,
			)
		}
	}()
	s.handler(e)
}
