package pubsub

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// EventType is the type of event subscribers are listening for
type EventType int

// SubscriptionOptions configures the behavior of a subscription.
type SubscriptionOptions struct {
	// If true, the broker blocks until the event fits in the subscriber's channel. This guarantees delivery but one
	// slow subscriber stalls every other one, so it should generally be false.
	IsBlocking bool
}

// SubscriberID identifies a single subscription. It is required to unsubscribe.
type SubscriberID uint64

var nextSubscriberID atomic.Uint64

// Event is a typed event. Event[RoleChange] and Event[Outcome] are distinct types, so a subscriber always receives
// the payload type it asked for.
type Event[T any] struct {
	Type    EventType
	Payload T
}

func NewEvent[T any](eventType EventType, payload T) *Event[T] {
	return &Event[T]{
		Type:    eventType,
		Payload: payload,
	}
}

// subscriber is the type-erased form of a typed channel. The registry cannot hold chan *Event[A] and chan *Event[B]
// side by side, so it holds closures that captured them instead.
type subscriber struct {
	// deliver converts the payload back to the captured channel's type and sends it. It returns false if the event
	// was dropped.
	deliver func(eventType EventType, payload any) bool
	close   func()

	opts    SubscriptionOptions
	dropped atomic.Uint64
}

type published struct {
	eventType EventType
	payload   any
}

// PubSubClient is a thread-safe broker. Publish enqueues, and a single goroutine fans events out to subscribers.
type PubSubClient struct {
	mu sync.RWMutex
	wg sync.WaitGroup

	registry map[EventType]map[SubscriberID]*subscriber

	// Buffered so that Publish does not wait for the fan-out of the previous event. It is drained on
	// GracefulShutdown.
	queue chan published

	shuttingDown atomic.Bool
}

// Subscribe registers ch for events of eventType. The caller owns the channel and picks its buffer size; the broker
// closes it on Unsubscribe.
//
// It is a free function because Go methods cannot declare their own type parameters.
func Subscribe[T any](p *PubSubClient, eventType EventType, ch chan *Event[T], opts SubscriptionOptions) SubscriberID {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := SubscriberID(nextSubscriberID.Add(1))

	sub := &subscriber{
		opts: opts,
		deliver: func(evType EventType, payload any) bool {
			typed, ok := payload.(T)
			if !ok {
				log.Warnf("[PUBSUB] Type mismatch for event %v. Expected %T, got %T", evType, *new(T), payload)
				return false
			}

			event := &Event[T]{Type: evType, Payload: typed}
			if opts.IsBlocking {
				ch <- event
				return true
			}

			select {
			case ch <- event:
				return true
			default:
				// Full channel, drop rather than stall the broker
				return false
			}
		},
		close: func() {
			close(ch)
		},
	}

	if _, ok := p.registry[eventType]; !ok {
		p.registry[eventType] = make(map[SubscriberID]*subscriber)
	}
	p.registry[eventType][id] = sub

	return id
}

// Unsubscribe removes a subscription and closes its channel.
func (p *PubSubClient) Unsubscribe(eventType EventType, id SubscriberID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers, ok := p.registry[eventType]
	if !ok {
		return
	}
	sub, ok := subscribers[id]
	if !ok {
		return
	}

	delete(subscribers, id)
	sub.close()
	if len(subscribers) == 0 {
		delete(p.registry, eventType)
	}
	log.Debugf("[PUBSUB] Unsubscribed subscriber %d from event type %v", id, eventType)
}

// Dropped returns how many events a non-blocking subscriber missed because its channel was full.
func (p *PubSubClient) Dropped(eventType EventType, id SubscriberID) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if sub, ok := p.registry[eventType][id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Publish enqueues an event for broadcast. Events published after a shutdown started are dropped.
//
// The read lock is held for the whole call: closing the queue needs the write lock, so the queue cannot be closed
// between the shuttingDown check and the send.
func Publish[T any](p *PubSubClient, event *Event[T]) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shuttingDown.Load() {
		log.Warnf("[PUBSUB] Dropping event %v, broker is shutting down", event.Type)
		return
	}

	p.queue <- published{eventType: event.Type, payload: event.Payload}
}

// ForceShutdown stops accepting events and returns without waiting for the queue to drain.
func (p *PubSubClient) ForceShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shuttingDown.Swap(true) {
		return
	}
	close(p.queue)
}

// GracefulShutdown stops accepting events and blocks until everything already queued has been delivered.
func (p *PubSubClient) GracefulShutdown() {
	p.mu.Lock()
	if !p.shuttingDown.Swap(true) {
		close(p.queue)
	}
	// Unlock before waiting, run() needs the read lock to drain
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *PubSubClient) run() {
	defer p.wg.Done()

	for msg := range p.queue {
		p.mu.RLock()
		for id, sub := range p.registry[msg.eventType] {
			if !sub.deliver(msg.eventType, msg.payload) && !sub.opts.IsBlocking {
				total := sub.dropped.Add(1)
				log.Debugf("[PUBSUB] Dropped event %v for subscriber %d. Total dropped: %d", msg.eventType, id, total)
			}
		}
		p.mu.RUnlock()
	}
}

func NewPubSub() *PubSubClient {
	p := &PubSubClient{
		registry: make(map[EventType]map[SubscriberID]*subscriber),
		queue:    make(chan published, 100),
	}

	p.wg.Add(1)
	go p.run()

	return p
}
