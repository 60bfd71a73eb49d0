package events

import (
	"sync"
	"testing"
	"time"
)

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(100)
	// Should not panic and should not block
	n.Publish(Event{Type: EntityCreated, Kind: "hive-catalog", Entity: "warehouse"})
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	n.Publish(Event{Type: EntityCreated})
}

func TestNotifier_SubscribeReceivesEvent(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("sub-1")

	n.Publish(Event{
		Type:       EntityAltered,
		Kind:       "mysql-table",
		Entity:     "db.orders",
		Properties: map[string]string{"engine": "INNODB"},
	})

	select {
	case ev := <-sub.Ch:
		if ev.Entity != "db.orders" {
			t.Errorf("expected entity 'db.orders', got '%s'", ev.Entity)
		}
		if ev.Type != EntityAltered {
			t.Errorf("expected EntityAltered, got %v", ev.Type)
		}
		if ev.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event within timeout")
	}
}

func TestNotifier_FilterByEntityPrefix(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("sub-2", "sales.")

	n.Publish(Event{Type: EntityCreated, Entity: "hr.people"})
	n.Publish(Event{Type: EntityCreated, Entity: "sales.orders"})

	select {
	case ev := <-sub.Ch:
		if ev.Entity != "sales.orders" {
			t.Fatalf("received unexpected event for %s", ev.Entity)
		}
	case <-time.After(time.Second):
		t.Fatal("expected matching event")
	}

	select {
	case ev := <-sub.Ch:
		t.Fatalf("received unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_FullBufferDropsEvent(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe("sub-3")

	done := make(chan struct{})
	go func() {
		n.Publish(Event{Type: PartitionAdded, Entity: "t", Partition: "p0"})
		n.Publish(Event{Type: PartitionAdded, Entity: "t", Partition: "p1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := n.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped delivery, got %d", got)
	}
	if ev := <-sub.Ch; ev.Partition != "p0" {
		t.Errorf("expected first event kept, got %s", ev.Partition)
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(10)
	sub := n.Subscribe("sub-4")
	n.Unsubscribe("sub-4")

	if _, ok := <-sub.Ch; ok {
		t.Error("expected channel to be closed")
	}
	// Publishing afterwards must not panic.
	n.Publish(Event{Type: EntityCreated, Entity: "x"})
	n.Unsubscribe("sub-4")
}

func TestNotifier_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	n := NewNotifier(4)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		sub := n.SubscribeAutoID()
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.Publish(Event{Type: EntityAltered, Entity: "e"})
			}
		}()
		go func(id string) {
			defer wg.Done()
			n.Unsubscribe(id)
		}(sub.ID)
	}
	wg.Wait()
}

func TestEventTypeString(t *testing.T) {
	tests := map[EventType]string{
		EntityCreated:  "entity-created",
		EntityAltered:  "entity-altered",
		PartitionAdded: "partition-added",
		EventType(42):  "unknown",
	}
	for typ, want := range tests {
		if got := typ.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", typ, got, want)
		}
	}
}
