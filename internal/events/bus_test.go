package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Type: TypeTask, Action: "completed"})

	select {
	case e := <-ch:
		if e.Type != TypeTask || e.Action != "completed" {
			t.Errorf("event = %+v, want task/completed", e)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	cancel()

	b.Publish(Event{Type: TypeSession, Action: "tick"})

	select {
	case e := <-ch:
		t.Errorf("received %+v after cancel", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SlowSubscriberDropped(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Fill the buffer past capacity; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(Event{Type: TypeTask, Action: "tick"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if n := len(ch); n > 64 {
		t.Errorf("buffered events = %d, want <= 64", n)
	}
}
