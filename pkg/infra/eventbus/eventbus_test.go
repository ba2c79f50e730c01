package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testEvent struct {
	kind  string
	topic string
	at    time.Time
}

func (e *testEvent) Type() string         { return e.kind }
func (e *testEvent) Topic() string        { return e.topic }
func (e *testEvent) Payload() any         { return nil }
func (e *testEvent) Timestamp() time.Time { return e.at }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var count atomic.Int64
	_, err := bus.Subscribe(func(e Event) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := bus.Publish(&testEvent{kind: "alert.admitted", topic: "alerts", at: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, func() bool { return count.Load() == 5 })
}

func TestFilters(t *testing.T) {
	bus := NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var admitted, alerts atomic.Int64
	if _, err := bus.Subscribe(func(e Event) error {
		admitted.Add(1)
		return nil
	}, FilterByType("alert.admitted")); err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Subscribe(func(e Event) error {
		alerts.Add(1)
		return nil
	}, FilterByTopic("alerts")); err != nil {
		t.Fatal(err)
	}

	events := []*testEvent{
		{kind: "alert.admitted", topic: "alerts"},
		{kind: "alert.merged", topic: "alerts"},
		{kind: "alert.admitted", topic: "users"},
	}
	for _, e := range events {
		e.at = time.Now()
		if err := bus.Publish(e); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, func() bool { return admitted.Load() == 2 && alerts.Load() == 2 })
}

func TestFilterByTypes(t *testing.T) {
	f := FilterByTypes("alert.admitted", "alert.resolved")
	if !f(&testEvent{kind: "alert.resolved"}) {
		t.Error("expected match for alert.resolved")
	}
	if f(&testEvent{kind: "alert.merged"}) {
		t.Error("unexpected match for alert.merged")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	defer func() { _ = bus.Close() }()

	var count atomic.Int64
	id, err := bus.Subscribe(func(e Event) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish(&testEvent{kind: "x", at: time.Now()}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return count.Load() == 1 })

	if err := bus.Unsubscribe(id); err != nil {
		t.Fatal(err)
	}
	if err := bus.Unsubscribe(id); err == nil {
		t.Error("expected error on double unsubscribe")
	}
}

func TestCloseRejectsPublish(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(&testEvent{kind: "x", at: time.Now()}); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := bus.Subscribe(func(Event) error { return nil }); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
	// Close is idempotent.
	if err := bus.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewInMemoryBus(WithBufferSize(256), WithWorkerCount(8))
	defer func() { _ = bus.Close() }()

	var count atomic.Int64
	if _, err := bus.Subscribe(func(e Event) error {
		count.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	const publishers, perPublisher = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				_ = bus.Publish(&testEvent{kind: "alert.merged", topic: "alerts", at: time.Now()})
			}
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return count.Load() == publishers*perPublisher })
}
