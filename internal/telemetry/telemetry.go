// Package telemetry collects in-process sync statistics off the event
// bus. Counters never leave the process; they exist for diagnostics
// screens and tests.
package telemetry

import (
	"sync"
	"time"

	"github.com/waymarkapp/core/internal/events"
)

// Snapshot is a point-in-time copy of the collected counters.
type Snapshot struct {
	LocationsSynced  int64
	LocationsSkipped int64
	SyncBatches      int64
	SyncFailures     int64
	ClientErrors     int64
	MutationsQueued  int64
	EntitiesCreated  int64
	LastSyncAt       time.Time
	LastFailureAt    time.Time
}

// Collector accumulates sync counters from bus events.
type Collector struct {
	mu   sync.Mutex
	snap Snapshot
	subs []events.Subscription
	bus  *events.Bus
}

// NewCollector creates a Collector and subscribes it to the bus.
func NewCollector(bus *events.Bus) *Collector {
	c := &Collector{bus: bus}
	c.subs = []events.Subscription{
		bus.Subscribe(events.KindLocationSynced, c.onEvent),
		bus.Subscribe(events.KindLocationSkipped, c.onEvent),
		bus.Subscribe(events.KindSyncSucceeded, c.onEvent),
		bus.Subscribe(events.KindSyncFailed, c.onEvent),
		bus.Subscribe(events.KindSyncQueued, c.onEvent),
		bus.Subscribe(events.KindEntityCreated, c.onEvent),
	}
	return c
}

// Close detaches the collector from the bus.
func (c *Collector) Close() {
	for _, sub := range c.subs {
		c.bus.Unsubscribe(sub)
	}
}

// Stats returns a copy of the current counters.
func (c *Collector) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Reset zeroes all counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = Snapshot{}
}

func (c *Collector) onEvent(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case events.LocationSynced:
		c.snap.LocationsSynced++
	case events.LocationSkipped:
		c.snap.LocationsSkipped++
	case events.SyncSucceeded:
		c.snap.SyncBatches++
		c.snap.LastSyncAt = time.Now()
	case events.SyncFailed:
		c.snap.SyncFailures++
		if ev.ClientError {
			c.snap.ClientErrors++
		}
		c.snap.LastFailureAt = time.Now()
	case events.SyncQueued:
		c.snap.MutationsQueued++
	case events.EntityCreated:
		c.snap.EntitiesCreated++
	}
}
