package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/libs/service"
	"github.com/tendermint/lattice/types"
)

var (
	// ErrTerminated is returned by Next once the subscription was removed or
	// the bus stopped.
	ErrTerminated = errors.New("subscription terminated")

	// ErrAlreadySubscribed is returned when a subscriber name is reused.
	ErrAlreadySubscribed = errors.New("already subscribed")
)

// EventBus is a common bus for all events going through the node. Publishing
// never blocks: every subscription owns an unbounded queue, so a slow
// subscriber delays only itself.
type EventBus struct {
	service.BaseService
	logger log.Logger

	mtx  sync.RWMutex
	subs map[string]*Subscription
}

// NewDefault returns a new event bus.
func NewDefault(l log.Logger) *EventBus {
	logger := l.With("module", "eventbus")
	b := &EventBus{
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
	b.BaseService = *service.NewBaseService(logger, "EventBus", b)
	return b
}

func (b *EventBus) OnStart(context.Context) error { return nil }

// OnStop terminates every subscription.
func (b *EventBus) OnStop() {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for name, sub := range b.subs {
		sub.terminate()
		delete(b.subs, name)
	}
}

// Subscribe registers a new subscriber. When filter is non-empty only events
// with one of the given names are queued.
func (b *EventBus) Subscribe(name string, filter ...string) (*Subscription, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.subs[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, name)
	}

	sub := newSubscription(name, filter)
	b.subs[name] = sub
	return sub, nil
}

// Unsubscribe removes a subscriber; its Next calls return ErrTerminated.
func (b *EventBus) Unsubscribe(name string) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if sub, ok := b.subs[name]; ok {
		sub.terminate()
		delete(b.subs, name)
	}
}

func (b *EventBus) NumClients() int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every matching subscriber.
func (b *EventBus) Publish(ev types.Event) {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	for _, sub := range b.subs {
		if sub.matches(ev) {
			sub.push(ev)
		}
	}
}

// Subscription is a single subscriber's view of the bus.
type Subscription struct {
	name   string
	filter map[string]struct{}

	mtx        sync.Mutex
	queue      []types.Event
	signal     chan struct{}
	terminated bool
}

func newSubscription(name string, filter []string) *Subscription {
	sub := &Subscription{
		name:   name,
		signal: make(chan struct{}, 1),
	}
	if len(filter) > 0 {
		sub.filter = make(map[string]struct{}, len(filter))
		for _, f := range filter {
			sub.filter[f] = struct{}{}
		}
	}
	return sub
}

func (s *Subscription) ID() string { return s.name }

// Len returns the number of undelivered events.
func (s *Subscription) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.queue)
}

// Next blocks until an event is available, ctx ends, or the subscription is
// terminated.
func (s *Subscription) Next(ctx context.Context) (types.Event, error) {
	for {
		s.mtx.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mtx.Unlock()
			return ev, nil
		}
		terminated := s.terminated
		s.mtx.Unlock()

		if terminated {
			return nil, ErrTerminated
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.signal:
		}
	}
}

func (s *Subscription) matches(ev types.Event) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[ev.EventName()]
	return ok
}

func (s *Subscription) push(ev types.Event) {
	s.mtx.Lock()
	if s.terminated {
		s.mtx.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mtx.Unlock()
	s.notify()
}

func (s *Subscription) terminate() {
	s.mtx.Lock()
	s.terminated = true
	s.mtx.Unlock()
	s.notify()
}

func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
