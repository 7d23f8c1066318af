// Package scheduler drives the periodic location sync cycle: it gates on
// the rate limiter, drains the location queue in batches, classifies each
// transport outcome and commits the results back to storage.
package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/events"
	"github.com/waymarkapp/core/internal/logging"
	syncpkg "github.com/waymarkapp/core/internal/sync"
	"github.com/waymarkapp/core/internal/sync/ratelimit"
)

// Config holds scheduler configuration.
type Config struct {
	TickInterval  time.Duration // cadence of sync cycle attempts
	PurgeInterval time.Duration // cadence of the retention purge
	BatchSize     int           // max locations fetched per cycle
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		TickInterval:  syncpkg.DefaultTickInterval,
		PurgeInterval: syncpkg.DefaultPurgeInterval,
		BatchSize:     syncpkg.DefaultBatchSize,
	}
}

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	Attempted int  // locations pulled from the queue
	Synced    int  // confirmed by the server
	Skipped   int  // deliberately discarded by the server
	Rejected  int  // permanently invalid
	Failed    int  // transient failures, retried next cycle
	Aborted   bool // cycle halted early (auth failure or server throttling)
	RateGated bool // rate limiter denied the cycle before it started
}

// Scheduler runs the background location sync loop.
type Scheduler struct {
	repo      *db.Repository
	transport syncpkg.Transport
	limiter   *ratelimit.Limiter
	bus       *events.Bus

	tickInterval  time.Duration
	purgeInterval time.Duration
	batchSize     int

	mu            gosync.Mutex
	wg            gosync.WaitGroup
	cancel        context.CancelFunc
	isRunning     bool
	isOnline      bool
	cycleInFlight bool
}

// New creates a Scheduler. A nil config uses DefaultConfig.
func New(repo *db.Repository, transport syncpkg.Transport, limiter *ratelimit.Limiter, bus *events.Bus, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		repo:          repo,
		transport:     transport,
		limiter:       limiter,
		bus:           bus,
		tickInterval:  config.TickInterval,
		purgeInterval: config.PurgeInterval,
		batchSize:     config.BatchSize,
		isOnline:      true,
	}
}

// Start launches the tick and purge loops. Calling Start on a running
// scheduler has no additional effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(2)
	go s.tickLoop(ctx)
	go s.purgeLoop(ctx)

	logging.Info("Location sync scheduler started", map[string]interface{}{
		"tick_interval": s.tickInterval.String(),
		"batch_size":    s.batchSize,
	})
}

// Stop halts the loops and waits for any in-flight cycle to finish.
// Stopping a stopped scheduler is safe.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	logging.Info("Location sync scheduler stopped", nil)
}

// IsRunning reports whether the loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SetOnline flips the connectivity flag. Cycles are suppressed while
// offline. A change is published on the bus.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.isOnline != online
	s.isOnline = online
	s.mu.Unlock()

	if changed {
		logging.Info("Connectivity changed", map[string]interface{}{"online": online})
		s.bus.Publish(events.ConnectivityChanged{Online: online})
	}
}

// IsOnline reports the connectivity flag.
func (s *Scheduler) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOnline
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunSyncCycle(ctx); err != nil {
				logging.Error("Location sync cycle failed", err, nil)
			}
		}
	}
}

func (s *Scheduler) purgeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.repo.PurgeLocations(db.SyncedRetentionDays)
			if err != nil {
				logging.Error("Location purge failed", err, nil)
				continue
			}
			if result.Total() > 0 {
				logging.Info("Purged old locations", map[string]interface{}{
					"synced":        result.Synced,
					"rejected":      result.Rejected,
					"stale_pending": result.StalePending,
				})
			}
		}
	}
}

// RunSyncCycle executes one sync cycle immediately. A cycle already in
// flight makes this call a no-op. Exposed so the host can trigger an
// off-schedule sync (e.g. on connectivity regained).
func (s *Scheduler) RunSyncCycle(ctx context.Context) (CycleResult, error) {
	s.mu.Lock()
	if s.cycleInFlight || !s.isOnline {
		s.mu.Unlock()
		return CycleResult{}, nil
	}
	s.cycleInFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycleInFlight = false
		s.mu.Unlock()
	}()

	return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) (result CycleResult, err error) {
	configured, err := s.repo.IsConfigured()
	if err != nil {
		return result, err
	}
	if !configured {
		logging.Debug("Skipping sync cycle: server not configured", nil)
		return result, nil
	}

	enabled, err := s.repo.IsTrackingEnabled()
	if err != nil {
		return result, err
	}
	if !enabled {
		logging.Debug("Skipping sync cycle: tracking disabled", nil)
		return result, nil
	}

	if !s.limiter.IsAllowed() {
		result.RateGated = true
		logging.Debug("Skipping sync cycle: rate limited", nil)
		return result, nil
	}

	locations, err := s.repo.GetPendingLocations(s.batchSize)
	if err != nil {
		return result, err
	}

	if len(locations) == 0 {
		// An empty queue still counts as an attempted cycle, otherwise a
		// busy-empty queue could bypass the interval gate.
		s.limiter.RecordSync()
		return result, nil
	}

	result.Attempted = len(locations)
	logging.Debug("Sync cycle started", map[string]interface{}{"pending": len(locations)})

	batchIDs := make([]int64, 0, len(locations))
	for _, loc := range locations {
		batchIDs = append(batchIDs, loc.ID)
	}
	if _, err := s.repo.MarkLocationsSyncing(batchIDs); err != nil {
		return result, err
	}
	// Rows the loop never resolved (aborts, cancellation) go back to
	// Pending when the cycle ends.
	defer func() {
		if _, resetErr := s.repo.ResetSyncingLocations(); resetErr != nil {
			logging.Error("Failed to reset in-flight locations", resetErr, nil)
			if err == nil {
				err = resetErr
			}
		}
	}()

	var syncedIDs []int64
	var storeErr error

loop:
	for _, loc := range locations {
		select {
		case <-ctx.Done():
			result.Aborted = true
			break loop
		default:
		}

		res, sendErr := s.transport.SendLocation(ctx, loc)
		outcome := syncpkg.Evaluate(res, sendErr)

		switch outcome.Kind {
		case syncpkg.OutcomeSuccess:
			syncedIDs = append(syncedIDs, loc.ID)
			result.Synced++
			s.bus.Publish(events.LocationSynced{
				QueueID:   loc.ID,
				ServerID:  outcome.ServerID,
				Timestamp: loc.Timestamp,
			})

		case syncpkg.OutcomeSkipped:
			if markErr := s.repo.MarkLocationRejected(loc.ID, outcome.Reason); markErr != nil {
				logging.Error("Failed to mark location skipped", markErr,
					map[string]interface{}{"location_id": loc.ID})
				if storeErr == nil {
					storeErr = markErr
				}
			}
			result.Skipped++
			s.bus.Publish(events.LocationSkipped{QueueID: loc.ID, Reason: outcome.Reason})

		case syncpkg.OutcomeRejected:
			if markErr := s.repo.MarkLocationRejected(loc.ID, outcome.Reason); markErr != nil {
				logging.Error("Failed to mark location rejected", markErr,
					map[string]interface{}{"location_id": loc.ID})
				if storeErr == nil {
					storeErr = markErr
				}
			}
			result.Rejected++

		case syncpkg.OutcomeAuthFailure:
			// Not the location's fault: leave it pending and halt the
			// cycle so the operator can re-authenticate.
			logging.Warn("Sync cycle aborted: authentication failed",
				map[string]interface{}{"detail": outcome.Detail})
			s.bus.Publish(events.SyncFailed{ClientError: true, Message: outcome.Detail})
			result.Aborted = true
			break loop

		case syncpkg.OutcomeRateLimited:
			logging.Warn("Sync cycle aborted: server rate limited",
				map[string]interface{}{"detail": outcome.Detail})
			result.Aborted = true
			break loop

		default: // OutcomeTransient
			if attemptErr := s.repo.RecordLocationAttempt(loc.ID, outcome.Detail); attemptErr != nil {
				logging.Error("Failed to record location attempt", attemptErr,
					map[string]interface{}{"location_id": loc.ID})
				if storeErr == nil {
					storeErr = attemptErr
				}
			}
			result.Failed++
		}
	}

	if len(syncedIDs) > 0 {
		if _, err := s.repo.MarkLocationsSynced(syncedIDs); err != nil {
			return result, err
		}
		s.bus.Publish(events.SyncSucceeded{Count: len(syncedIDs)})
	}

	// The last-sync-time setting is recorded for every processed batch,
	// successful or not; only the empty-queue path above skips it.
	if setErr := s.repo.SetLastSyncTime(time.Now()); setErr != nil {
		logging.Error("Failed to record last sync time", setErr, nil)
		if storeErr == nil {
			storeErr = setErr
		}
	}

	s.limiter.RecordSync()

	logging.Info("Sync cycle finished", map[string]interface{}{
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"skipped":   result.Skipped,
		"rejected":  result.Rejected,
		"failed":    result.Failed,
		"aborted":   result.Aborted,
	})
	return result, storeErr
}
