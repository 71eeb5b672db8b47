package actions

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives events on the publishing goroutine. It must not block on
// I/O.
type Handler func(ActionEvent)

// Bus is a synchronous in-process publish/subscribe dispatcher. Subscribing is
// rare and publishing is frequent, so the handler list is copy-on-write and
// Publish never takes a lock.
type Bus struct {
	mu       sync.Mutex
	handlers atomic.Pointer[[]*Subscription]
}

func NewBus() *Bus {
	b := &Bus{}
	b.handlers.Store(&[]*Subscription{})
	return b
}

// Subscription unsubscribes its handler on Close. Close is safe to call any
// number of times.
type Subscription struct {
	bus     *Bus
	handler Handler
	once    sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Publish runs every current handler before returning. A panicking handler is
// logged and the remaining handlers still run.
func (b *Bus) Publish(ev ActionEvent) {
	for _, sub := range *b.handlers.Load() {
		b.invoke(sub, ev)
	}
}

func (b *Bus) invoke(sub *Subscription, ev ActionEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Action handler panicked",
				slog.String("type", "bus"),
				slog.String("action", ev.Type()),
				slog.String("player", ev.PlayerID().String()),
				slog.Any("error", r))
		}
	}()
	sub.handler(ev)
}

func (b *Bus) Subscribe(h Handler) *Subscription {
	if h == nil {
		panic("actions: nil handler")
	}
	sub := &Subscription{bus: b, handler: h}

	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.handlers.Load()
	next := make([]*Subscription, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, sub)
	b.handlers.Store(&next)
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.handlers.Load()
	next := make([]*Subscription, 0, len(cur))
	for _, s := range cur {
		if s != sub {
			next = append(next, s)
		}
	}
	b.handlers.Store(&next)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	return len(*b.handlers.Load())
}

// Close drops every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers.Store(&[]*Subscription{})
}
