package events

import (
	"testing"
	"time"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(TurnEvent{CallSID: "CA1", Role: "patient", Text: "yes"})

	select {
	case ev := <-ch:
		if ev.CallSID != "CA1" || ev.Text != "yes" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer without draining it.
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(TurnEvent{CallSID: "CA2"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after cancel")
	}
	if n := hub.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", n)
	}

	// Cancel twice is safe.
	cancel()
}

func TestHubPublishAfterCancelDropsQuietly(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	cancel()

	hub.Publish(TurnEvent{CallSID: "CA3"})
}
