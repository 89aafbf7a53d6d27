package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEvent EventType = iota
	otherEvent
)

type payload struct {
	Value int
}

func receive[T any](t *testing.T, ch chan *Event[T]) *Event[T] {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPubSub_PublishSubscribe(t *testing.T) {
	ps := NewPubSub()
	defer ps.GracefulShutdown()

	ch := make(chan *Event[payload], 10)
	Subscribe(ps, testEvent, ch, SubscriptionOptions{IsBlocking: true})

	Publish(ps, NewEvent(testEvent, payload{Value: 1}))
	Publish(ps, NewEvent(testEvent, payload{Value: 2}))

	assert.Equal(t, payload{Value: 1}, receive(t, ch).Payload)
	ev := receive(t, ch)
	assert.Equal(t, testEvent, ev.Type)
	assert.Equal(t, payload{Value: 2}, ev.Payload)
}

func TestPubSub_OnlyMatchingEventType(t *testing.T) {
	ps := NewPubSub()

	mine := make(chan *Event[payload], 10)
	other := make(chan *Event[payload], 10)
	Subscribe(ps, testEvent, mine, SubscriptionOptions{IsBlocking: true})
	Subscribe(ps, otherEvent, other, SubscriptionOptions{IsBlocking: true})

	Publish(ps, NewEvent(testEvent, payload{Value: 1}))
	ps.GracefulShutdown()

	assert.Len(t, mine, 1)
	assert.Len(t, other, 0)
}

func TestPubSub_TypeMismatchIsNotDelivered(t *testing.T) {
	ps := NewPubSub()

	ch := make(chan *Event[payload], 10)
	Subscribe(ps, testEvent, ch, SubscriptionOptions{IsBlocking: true})

	Publish(ps, NewEvent(testEvent, "not a payload"))
	Publish(ps, NewEvent(testEvent, payload{Value: 3}))
	ps.GracefulShutdown()

	require.Len(t, ch, 1)
	assert.Equal(t, payload{Value: 3}, (<-ch).Payload)
}

func TestPubSub_NonBlockingDrops(t *testing.T) {
	ps := NewPubSub()

	// Unbuffered and never read, every event is dropped
	ch := make(chan *Event[payload])
	id := Subscribe(ps, testEvent, ch, SubscriptionOptions{IsBlocking: false})

	for i := 0; i < 5; i++ {
		Publish(ps, NewEvent(testEvent, payload{Value: i}))
	}

	assert.Eventually(t, func() bool {
		return ps.Dropped(testEvent, id) == 5
	}, time.Second, 10*time.Millisecond)

	ps.GracefulShutdown()
}

func TestPubSub_Unsubscribe(t *testing.T) {
	ps := NewPubSub()
	defer ps.GracefulShutdown()

	ch := make(chan *Event[payload], 10)
	id := Subscribe(ps, testEvent, ch, SubscriptionOptions{IsBlocking: true})

	ps.Unsubscribe(testEvent, id)

	_, open := <-ch
	assert.False(t, open, "the channel is closed on unsubscribe")
	assert.Equal(t, uint64(0), ps.Dropped(testEvent, id))

	// Unknown ids are ignored
	ps.Unsubscribe(testEvent, id)
	ps.Unsubscribe(otherEvent, 12345)

	// Publishing without subscribers is fine
	Publish(ps, NewEvent(testEvent, payload{Value: 1}))
}

func TestPubSub_UniqueSubscriberIDs(t *testing.T) {
	ps := NewPubSub()
	defer ps.GracefulShutdown()

	a := Subscribe(ps, testEvent, make(chan *Event[payload], 1), SubscriptionOptions{})
	b := Subscribe(ps, testEvent, make(chan *Event[payload], 1), SubscriptionOptions{})
	assert.NotEqual(t, a, b)
}

func TestPubSub_Shutdown(t *testing.T) {
	t.Run("graceful delivers what was queued", func(t *testing.T) {
		ps := NewPubSub()
		ch := make(chan *Event[payload], 50)
		Subscribe(ps, testEvent, ch, SubscriptionOptions{IsBlocking: true})

		for i := 0; i < 50; i++ {
			Publish(ps, NewEvent(testEvent, payload{Value: i}))
		}
		ps.GracefulShutdown()

		assert.Len(t, ch, 50)
	})

	t.Run("publishing after shutdown is dropped", func(t *testing.T) {
		ps := NewPubSub()
		ch := make(chan *Event[payload], 1)
		Subscribe(ps, testEvent, ch, SubscriptionOptions{IsBlocking: true})

		ps.GracefulShutdown()
		Publish(ps, NewEvent(testEvent, payload{Value: 1}))

		assert.Len(t, ch, 0)
	})

	t.Run("shutdown is idempotent", func(t *testing.T) {
		ps := NewPubSub()
		ps.ForceShutdown()
		ps.ForceShutdown()
		ps.GracefulShutdown()
	})
}
