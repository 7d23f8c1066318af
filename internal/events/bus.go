// Package events implements the in-process publish/subscribe bus that the
// sync engines use to notify local caches and view layers. Dispatch is
// synchronous and best-effort: publishing with zero subscribers is not an
// error, and no delivery guarantees exist beyond at most once per publish
// call, so handlers must be idempotent.
package events

import "sync"

// EventKind identifies an event type on the bus.
type EventKind string

const (
	KindSyncSucceeded       EventKind = "sync_succeeded"
	KindSyncFailed          EventKind = "sync_failed"
	KindSyncQueued          EventKind = "sync_queued"
	KindEntityCreated       EventKind = "entity_created"
	KindLocationSynced      EventKind = "location_synced"
	KindLocationSkipped     EventKind = "location_skipped"
	KindTripsUpdated        EventKind = "trips_updated"
	KindTripDataChanged     EventKind = "trip_data_changed"
	KindConnectivityChanged EventKind = "connectivity_changed"
)

// Event is implemented by every payload published on the bus.
type Event interface {
	Kind() EventKind
}

// SyncSucceeded fires when a sync cycle confirmed at least one item.
type SyncSucceeded struct {
	Count int
}

func (SyncSucceeded) Kind() EventKind { return KindSyncSucceeded }

// SyncFailed fires when an item could not be synced. ClientError marks a
// permanent server rejection as opposed to a transient failure.
type SyncFailed struct {
	ClientError bool
	Message     string
}

func (SyncFailed) Kind() EventKind { return KindSyncFailed }

// SyncQueued fires when an item was deferred for a later retry.
type SyncQueued struct {
	Count int
}

func (SyncQueued) Kind() EventKind { return KindSyncQueued }

// EntityCreated announces that the server assigned a permanent id to an
// entity created offline. Subscribers owning caches keyed by TempID must
// rekey to ServerID.
type EntityCreated struct {
	EntityType string
	TempID     string
	ServerID   string
	TripID     string
}

func (EntityCreated) Kind() EventKind { return KindEntityCreated }

// LocationSynced fires once per location the server accepted.
type LocationSynced struct {
	QueueID   int64
	ServerID  string
	Timestamp int64
}

func (LocationSynced) Kind() EventKind { return KindLocationSynced }

// LocationSkipped fires when the server deliberately discarded a location.
type LocationSkipped struct {
	QueueID int64
	Reason  string
}

func (LocationSkipped) Kind() EventKind { return KindLocationSkipped }

// TripsUpdated describes a change to the trip list.
type TripsUpdated struct {
	Added       []string
	Modified    []string
	Deleted     []string
	FullRefresh bool
}

func (TripsUpdated) Kind() EventKind { return KindTripsUpdated }

// TripDataCategory scopes a TripDataChanged event.
type TripDataCategory string

const (
	TripDataMetadata        TripDataCategory = "metadata"
	TripDataPlaces          TripDataCategory = "places"
	TripDataSegments        TripDataCategory = "segments"
	TripDataDownloaded      TripDataCategory = "downloaded"
	TripDataDownloadDeleted TripDataCategory = "download_deleted"
	TripDataNotes           TripDataCategory = "notes"
)

// TripDataChanged describes a change within one trip.
type TripDataChanged struct {
	TripID   string
	Category TripDataCategory
}

func (TripDataChanged) Kind() EventKind { return KindTripDataChanged }

// ConnectivityChanged fires when the network reachability flag flips.
type ConnectivityChanged struct {
	Online bool
}

func (ConnectivityChanged) Kind() EventKind { return KindConnectivityChanged }

// Handler receives published events.
type Handler func(Event)

// Subscription identifies one registered handler for Unsubscribe.
type Subscription struct {
	kind EventKind
	id   int64
}

// Bus is an explicit in-process observer registry. Construct one with
// NewBus and inject it; there is no package-level instance.
type Bus struct {
	mu     sync.Mutex
	nextID int64
	subs   map[EventKind]map[int64]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventKind]map[int64]Handler)}
}

// Subscribe registers fn for events of the given kind and returns the
// handle needed to unsubscribe.
func (b *Bus) Subscribe(kind EventKind, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int64]Handler)
	}
	b.subs[kind][b.nextID] = fn
	return Subscription{kind: kind, id: b.nextID}
}

// Unsubscribe removes a handler. Unsubscribing twice is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subs[sub.kind]; ok {
		delete(handlers, sub.id)
	}
}

// Publish delivers e synchronously to all subscribers of its kind. The
// handler set is snapshotted first, so a handler may subscribe or
// unsubscribe without deadlocking; such changes take effect on the next
// publish.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[e.Kind()]))
	for _, fn := range b.subs[e.Kind()] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// SubscriberCount returns the number of handlers registered for kind.
func (b *Bus) SubscriberCount(kind EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[kind])
}
