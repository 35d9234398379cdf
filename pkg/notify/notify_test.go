package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	n := New(16)
	defer n.Stop()

	received := make(chan Event, 1)
	n.Subscribe(func(e Event) error {
		received <- e
		return nil
	})

	batchID := uuid.New()
	n.Publish(Event{BatchID: batchID, Type: EventStatusChange, Payload: "Processing"})

	select {
	case e := <-received:
		assert.Equal(t, batchID, e.BatchID)
		assert.Equal(t, EventStatusChange, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestFIFOPerBatchAndEventType(t *testing.T) {
	n := New(64)
	defer n.Stop()

	var mu sync.Mutex
	var order []int

	done := make(chan struct{})
	count := 0
	n.Subscribe(func(e Event) error {
		mu.Lock()
		order = append(order, e.Payload.(int))
		count++
		if count == 5 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	batchID := uuid.New()
	for i := 0; i < 5; i++ {
		n.Publish(Event{BatchID: batchID, Type: EventProgressUpdate, Payload: i})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected all events delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	n := New(16)
	defer n.Stop()

	received := make(chan Event, 4)
	id := n.Subscribe(func(e Event) error {
		received <- e
		return nil
	})
	n.Unsubscribe(id)

	n.Publish(Event{Type: EventStatusChange})

	select {
	case <-received:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTerminalEventsAlwaysDelivered(t *testing.T) {
	n := New(1)
	defer n.Stop()

	delivered := make(chan Event, 10)
	n.Subscribe(func(e Event) error {
		time.Sleep(5 * time.Millisecond)
		delivered <- e
		return nil
	})

	for i := 0; i < 3; i++ {
		n.Publish(Event{Type: EventProgressUpdate})
	}
	n.Publish(Event{Type: EventBatchCompleted})

	var sawTerminal bool
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-delivered:
			if e.Type == EventBatchCompleted {
				sawTerminal = true
			}
		case <-timeout:
			require.True(t, sawTerminal, "terminal event must be delivered even when non-terminal events are dropped")
			return
		}
	}
}
