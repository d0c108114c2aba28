package event

import (
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if id == 0 {
		t.Error("Subscribe should return a non-zero ID")
	}

	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}

	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var receivedEvent Event
	bus.Subscribe("session.created", func(e Event) {
		receivedEvent = e
	})

	event := NewSessionCreatedEvent("s-1", "session-2026-01-01-abcd1234", "ensemble/fix", "/tmp/wt", "fix the bug")
	bus.Publish(event)

	if receivedEvent == nil {
		t.Fatal("Handler should have received the event")
	}

	if receivedEvent.EventType() != "session.created" {
		t.Errorf("Expected event type 'session.created', got '%s'", receivedEvent.EventType())
	}

	created, ok := receivedEvent.(SessionCreatedEvent)
	if !ok {
		t.Fatal("Expected a SessionCreatedEvent payload")
	}
	if created.Branch != "ensemble/fix" {
		t.Errorf("Expected branch 'ensemble/fix', got '%s'", created.Branch)
	}
}

func TestBus_PublishMultipleHandlers(t *testing.T) {
	bus := NewBus()

	callCount := 0
	bus.Subscribe("test.event", func(e Event) {
		callCount++
	})
	bus.Subscribe("test.event", func(e Event) {
		callCount++
	})

	bus.Publish(newBaseEvent("test.event"))

	if callCount != 2 {
		t.Errorf("Expected both handlers to be called, got %d calls", callCount)
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe("other.event", func(e Event) {
		t.Error("Handler should not be called for non-matching event type")
	})

	bus.Publish(newBaseEvent("test.event"))
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()

	var types []string
	bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})

	bus.Publish(NewStatusChangedEvent("s-1", "active", "paused"))
	bus.Publish(NewSessionErrorEvent("s-1", "boom"))

	if len(types) != 2 {
		t.Fatalf("Expected wildcard handler to see 2 events, got %d", len(types))
	}
	if types[0] != "session.status_changed" || types[1] != "session.error" {
		t.Errorf("Unexpected event order: %v", types)
	}
}

func TestBus_SpecificHandlersBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) {
		order = append(order, "wildcard")
	})
	bus.Subscribe("session.completed", func(e Event) {
		order = append(order, "specific")
	})

	bus.Publish(NewSessionCompletedEvent("s-1", "done", 0.02))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("Expected specific handler before wildcard, got %v", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe("test.event", func(e Event) {
		called = true
	})

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for a known ID")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return false for an already-removed ID")
	}

	bus.Publish(newBaseEvent("test.event"))
	if called {
		t.Error("Handler should not be called after unsubscribe")
	}
}

func TestBus_HandlerPanicRecovered(t *testing.T) {
	bus := NewBus()

	secondCalled := false
	bus.Subscribe("test.event", func(e Event) {
		panic("handler exploded")
	})
	bus.Subscribe("test.event", func(e Event) {
		secondCalled = true
	})

	bus.Publish(newBaseEvent("test.event"))

	if !secondCalled {
		t.Error("A panicking handler should not block delivery to other handlers")
	}
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe("test.event", func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(newBaseEvent("test.event"))
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 1000 {
		t.Errorf("Expected 1000 deliveries, got %d", count)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("a", func(e Event) {})
	bus.Subscribe("b", func(e Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after Clear, got %d", bus.SubscriptionCount())
	}
}
