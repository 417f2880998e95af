package event

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Bus distributes events to subscribers.
type Bus interface {
	// Publish delivers evt to every matching subscription.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers handler for the given event types.
	Subscribe(types []string, handler Handler) Subscription

	// SubscribeAll registers handler for every event.
	SubscribeAll(handler Handler) Subscription

	// Close stops the bus after delivering events already queued.
	Close() error
}

// Subscription is an active registration on a Bus.
type Subscription interface {
	Unsubscribe()
}

// BusConfig configures a LocalBus.
type BusConfig struct {
	// BufferSize is the per-subscription queue length. Default 256.
	BufferSize int

	// NonBlocking drops events for subscribers whose queue is full
	// instead of waiting.
	NonBlocking bool

	// OnDrop is called for every dropped event.
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when a handler returns an error.
	OnError func(evt Event, subscriberID string, err error)
}

// DefaultBusConfig is used for zero fields.
var DefaultBusConfig = BusConfig{BufferSize: 256}

// LocalBus is an in-memory Bus. Each subscription is served by its own
// goroutine, so handlers see events in publish order.
type LocalBus struct {
	config BusConfig

	mu        sync.RWMutex
	byType    map[string]map[string]*subscription
	wildcards map[string]*subscription

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

var _ Bus = (*LocalBus)(nil)

// NewBus creates a LocalBus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	return &LocalBus{
		config:    config,
		byType:    make(map[string]map[string]*subscription),
		wildcards: make(map[string]*subscription),
		closeCh:   make(chan struct{}),
	}
}

type subscription struct {
	id      string
	types   []string
	handler Handler
	events  chan Event
	done    chan struct{}
	once    sync.Once
	bus     *LocalBus
}

// Publish implements Bus.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.byType[evt.Type()])+len(b.wildcards))
	for _, sub := range b.byType[evt.Type()] {
		subs = append(subs, sub)
	}
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
			continue
		}
		select {
		case sub.events <- evt:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}
	return nil
}

// Subscribe implements Bus. It returns nil after Close.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	return b.subscribe(types, handler)
}

// SubscribeAll implements Bus. It returns nil after Close.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types []string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return nil
	}

	sub := &subscription{
		id:      "sub-" + strconv.FormatInt(b.nextID.Add(1), 10),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	b.wg.Add(1)
	go sub.process()
	return sub
}

// Close implements Bus. Events queued before Close are still delivered;
// Close returns once every subscription has drained.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.wildcards))
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	for _, byID := range b.byType {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	b.wg.Wait()
	return nil
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) process() {
	defer s.bus.wg.Done()
	for {
		select {
		case evt := <-s.events:
			s.deliver(evt)
		case <-s.done:
			for {
				select {
				case evt := <-s.events:
					s.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (s *subscription) deliver(evt Event) {
	if err := s.handler.Handle(context.Background(), evt); err != nil && s.bus.config.OnError != nil {
		s.bus.config.OnError(evt, s.id, err)
	}
}

// Unsubscribe implements Subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.wildcards, s.id)
	for _, t := range s.types {
		delete(s.bus.byType[t], s.id)
	}
	s.bus.mu.Unlock()
	s.stop()
}
