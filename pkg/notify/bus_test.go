package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	bus := NewBus()
	events, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Publish(Event{Type: EventReady, Data: "s1"})

	select {
	case e := <-events:
		assert.Equal(t, EventReady, e.Type)
		assert.Equal(t, "s1", e.Data)
		assert.False(t, e.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	events, cancel := bus.Subscribe(1)
	cancel()

	bus.Publish(Event{Type: EventReady})

	select {
	case e := <-events:
		t.Fatalf("unexpected event after unsubscribe: %v", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	events, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventBulkProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// the buffered event is still readable
	require.Len(t, events, 1)
}
