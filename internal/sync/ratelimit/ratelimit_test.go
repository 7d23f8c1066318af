package ratelimit

import (
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l := New(DefaultMinInterval, DefaultHourlyCap)
	l.SetClock(clock.now)
	return l, clock
}

func TestAllowedWithNoHistory(t *testing.T) {
	l, _ := newTestLimiter()
	if !l.IsAllowed() {
		t.Fatal("fresh limiter should allow the first sync")
	}
}

func TestMinIntervalBoundary(t *testing.T) {
	l, clock := newTestLimiter()
	l.RecordSync()

	clock.advance(64 * time.Second)
	if l.IsAllowed() {
		t.Error("64s after a sync should be denied")
	}

	clock.advance(999 * time.Millisecond)
	if l.IsAllowed() {
		t.Error("just under 65s should be denied")
	}

	clock.advance(time.Millisecond)
	if !l.IsAllowed() {
		t.Error("exactly 65s after a sync should be allowed")
	}
}

func TestHourlyCap(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < DefaultHourlyCap-1; i++ {
		l.RecordSync()
		clock.advance(66 * time.Second)
	}
	if !l.IsAllowed() {
		t.Fatalf("%d syncs in the hour should still allow one more", DefaultHourlyCap-1)
	}

	l.RecordSync()
	clock.advance(66 * time.Second)
	if l.IsAllowed() {
		t.Fatalf("%d syncs in the trailing hour should deny", DefaultHourlyCap)
	}
}

func TestHourlyPruneIsStrict(t *testing.T) {
	l, clock := newTestLimiter()

	// Fill the cap with back-to-back records, interval gate aside.
	for i := 0; i < DefaultHourlyCap; i++ {
		l.RecordSync()
	}
	if got := l.HistoryCount(); got != DefaultHourlyCap {
		t.Fatalf("HistoryCount = %d, want %d", got, DefaultHourlyCap)
	}

	// At exactly one hour every entry has aged out.
	clock.advance(time.Hour)
	if got := l.HistoryCount(); got != 0 {
		t.Fatalf("entries exactly one hour old should be pruned, got %d", got)
	}
	if !l.IsAllowed() {
		t.Error("sync should be allowed once the window has emptied")
	}
}

func TestPruneKeepsRecentEntries(t *testing.T) {
	l, clock := newTestLimiter()

	l.RecordSync()
	clock.advance(30 * time.Minute)
	l.RecordSync()
	clock.advance(45 * time.Minute)

	// First entry is 75m old, second 45m old.
	if got := l.HistoryCount(); got != 1 {
		t.Fatalf("HistoryCount = %d, want 1", got)
	}
}

func TestRecordSyncUpdatesLastSync(t *testing.T) {
	l, clock := newTestLimiter()

	l.RecordSync()
	if got := l.LastSync(); !got.Equal(clock.t) {
		t.Fatalf("LastSync = %v, want %v", got, clock.t)
	}

	clock.advance(2 * time.Minute)
	l.RecordSync()
	if got := l.LastSync(); !got.Equal(clock.t) {
		t.Fatalf("LastSync after second sync = %v, want %v", got, clock.t)
	}
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	if l.minInterval != DefaultMinInterval {
		t.Errorf("minInterval = %v, want %v", l.minInterval, DefaultMinInterval)
	}
	if l.hourlyCap != DefaultHourlyCap {
		t.Errorf("hourlyCap = %d, want %d", l.hourlyCap, DefaultHourlyCap)
	}
}
