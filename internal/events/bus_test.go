package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()

	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(TypeTaskStarted, TaskEvent{TaskID: "t1"})

	select {
	case e := <-ch:
		if e.Type != TypeTaskStarted {
			t.Errorf("Type = %q, want %q", e.Type, TypeTaskStarted)
		}
		payload, ok := e.Payload.(TaskEvent)
		if !ok {
			t.Fatalf("Payload is %T, want TaskEvent", e.Payload)
		}
		if payload.TaskID != "t1" {
			t.Errorf("TaskID = %q, want t1", payload.TaskID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()

	ch, cancel := b.Subscribe(1)
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}

	// Cancelling twice is safe.
	cancel()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()

	// Buffer of 1, never drained.
	_, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(TypeQueueSnapshot, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := NewBus()

	ch1, cancel1 := b.Subscribe(2)
	ch2, cancel2 := b.Subscribe(2)
	defer cancel1()
	defer cancel2()

	b.Publish(TypeTaskCompleted, TaskEvent{TaskID: "t2", Output: "done"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TypeTaskCompleted {
				t.Errorf("subscriber %d: Type = %q, want %q", i, e.Type, TypeTaskCompleted)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received no event", i)
		}
	}
}
