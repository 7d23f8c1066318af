package events

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(KindLocationSynced, func(e Event) {
		got = append(got, e)
	})
	bus.Subscribe(KindLocationSynced, func(e Event) {
		got = append(got, e)
	})

	bus.Publish(LocationSynced{QueueID: 7, ServerID: "srv-1", Timestamp: 1000})

	if len(got) != 2 {
		t.Fatalf("delivered to %d handlers, want 2", len(got))
	}
	ev, ok := got[0].(LocationSynced)
	if !ok {
		t.Fatalf("handler received %T, want LocationSynced", got[0])
	}
	if ev.QueueID != 7 || ev.ServerID != "srv-1" {
		t.Errorf("unexpected payload: %+v", ev)
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	// Must not panic or error.
	bus.Publish(SyncFailed{ClientError: true, Message: "rejected"})
}

func TestPublishScopedByKind(t *testing.T) {
	bus := NewBus()

	var syncs, fails int
	bus.Subscribe(KindSyncSucceeded, func(Event) { syncs++ })
	bus.Subscribe(KindSyncFailed, func(Event) { fails++ })

	bus.Publish(SyncSucceeded{Count: 3})
	bus.Publish(SyncSucceeded{Count: 1})
	bus.Publish(SyncFailed{})

	if syncs != 2 || fails != 1 {
		t.Errorf("syncs = %d, fails = %d; want 2, 1", syncs, fails)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	var calls int
	sub := bus.Subscribe(KindConnectivityChanged, func(Event) { calls++ })

	bus.Publish(ConnectivityChanged{Online: false})
	bus.Unsubscribe(sub)
	bus.Publish(ConnectivityChanged{Online: true})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := bus.SubscriberCount(KindConnectivityChanged); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}

	// Second unsubscribe is a no-op.
	bus.Unsubscribe(sub)
}

func TestSubscribeDuringPublish(t *testing.T) {
	bus := NewBus()

	var late int
	bus.Subscribe(KindTripsUpdated, func(Event) {
		bus.Subscribe(KindTripsUpdated, func(Event) { late++ })
	})

	bus.Publish(TripsUpdated{FullRefresh: true})
	if late != 0 {
		t.Error("handler added during publish should not receive the same event")
	}

	bus.Publish(TripsUpdated{FullRefresh: true})
	if late != 1 {
		t.Errorf("late handler calls = %d, want 1", late)
	}
}

func TestEntityCreatedMapping(t *testing.T) {
	bus := NewBus()

	mapping := make(map[string]string)
	bus.Subscribe(KindEntityCreated, func(e Event) {
		ev := e.(EntityCreated)
		mapping[ev.TempID] = ev.ServerID
	})

	bus.Publish(EntityCreated{EntityType: "place", TempID: "tmp-abc", ServerID: "p-99"})

	if mapping["tmp-abc"] != "p-99" {
		t.Errorf("mapping = %v, want tmp-abc -> p-99", mapping)
	}
}
