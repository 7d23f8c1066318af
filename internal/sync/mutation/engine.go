// Package mutation drives the background sync of pending entity
// mutations: offline edits are merged into a persistent queue, pushed to
// the server in creation order and resolved or rolled back per outcome.
package mutation

import (
	"context"
	gosync "sync"
	"time"

	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/events"
	"github.com/waymarkapp/core/internal/logging"
	"github.com/waymarkapp/core/internal/models"
	syncpkg "github.com/waymarkapp/core/internal/sync"
	"github.com/waymarkapp/core/internal/uuid"
)

// Config holds engine configuration.
type Config struct {
	TickInterval time.Duration
	BatchSize    int
	MaxAttempts  int // mutations at or beyond this attempt count are held back
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: syncpkg.DefaultTickInterval,
		BatchSize:    syncpkg.DefaultBatchSize,
		MaxAttempts:  syncpkg.DefaultMaxMutationAttempts,
	}
}

// CycleResult summarizes one mutation sync cycle.
type CycleResult struct {
	Attempted int
	Confirmed int
	Rejected  int
	Deferred  int
	Aborted   bool
}

// Engine runs the mutation sync loop. It is independent of the location
// scheduler; the two may execute concurrently.
type Engine struct {
	repo      *db.Repository
	transport syncpkg.Transport
	bus       *events.Bus

	tickInterval time.Duration
	batchSize    int
	maxAttempts  int

	mu            gosync.Mutex
	wg            gosync.WaitGroup
	cancel        context.CancelFunc
	isRunning     bool
	cycleInFlight bool
}

// NewEngine creates an Engine. A nil config uses DefaultConfig.
func NewEngine(repo *db.Repository, transport syncpkg.Transport, bus *events.Bus, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		repo:         repo,
		transport:    transport,
		bus:          bus,
		tickInterval: config.TickInterval,
		batchSize:    config.BatchSize,
		maxAttempts:  config.MaxAttempts,
	}
}

// Enqueue records a local edit for eventual sync and announces it on the
// bus. An offline Create gets a temp client id so the entity stays
// addressable until the server assigns the permanent one. Merge
// semantics live in the store: a second edit to the same entity folds
// into the existing row.
func (e *Engine) Enqueue(m *models.PendingMutation) error {
	if m.Operation == models.OpCreate && m.TempClientID == "" {
		m.TempClientID = models.UUID(uuid.NewTempID())
		if m.EntityID == "" {
			m.EntityID = string(m.TempClientID)
		}
	}
	if err := e.repo.EnqueueMutation(m); err != nil {
		return err
	}
	e.bus.Publish(events.SyncQueued{Count: 1})
	return nil
}

// ResetAttempts re-admits retry-exhausted mutations to the pending set,
// optionally scoped to one trip. Rejected mutations are never touched.
func (e *Engine) ResetAttempts(tripID string) (int64, error) {
	return e.repo.ResetMutationAttempts(tripID)
}

// Start launches the tick loop. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.wg.Add(1)
	go e.tickLoop(ctx)

	logging.Info("Mutation sync engine started", map[string]interface{}{
		"tick_interval": e.tickInterval.String(),
	})
}

// Stop halts the loop and waits for an in-flight cycle. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	logging.Info("Mutation sync engine stopped", nil)
}

// IsRunning reports whether the loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isRunning
}

func (e *Engine) tickLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunSyncCycle(ctx); err != nil {
				logging.Error("Mutation sync cycle failed", err, nil)
			}
		}
	}
}

// RunSyncCycle executes one cycle immediately; a cycle already in flight
// makes this a no-op.
func (e *Engine) RunSyncCycle(ctx context.Context) (CycleResult, error) {
	e.mu.Lock()
	if e.cycleInFlight {
		e.mu.Unlock()
		return CycleResult{}, nil
	}
	e.cycleInFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cycleInFlight = false
		e.mu.Unlock()
	}()

	return e.runCycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	configured, err := e.repo.IsConfigured()
	if err != nil {
		return result, err
	}
	if !configured {
		logging.Debug("Skipping mutation cycle: server not configured", nil)
		return result, nil
	}

	mutations, err := e.repo.GetPendingMutations(e.batchSize, e.maxAttempts, "")
	if err != nil {
		return result, err
	}
	if len(mutations) == 0 {
		return result, nil
	}

	result.Attempted = len(mutations)
	logging.Debug("Mutation cycle started", map[string]interface{}{"pending": len(mutations)})

	var storeErr error

loop:
	for _, m := range mutations {
		select {
		case <-ctx.Done():
			result.Aborted = true
			break loop
		default:
		}

		res, sendErr := e.transport.SendMutation(ctx, m)
		outcome := syncpkg.Evaluate(res, sendErr)

		switch outcome.Kind {
		case syncpkg.OutcomeSuccess, syncpkg.OutcomeSkipped:
			if delErr := e.repo.DeleteMutation(m.ID); delErr != nil {
				logging.Error("Failed to remove confirmed mutation", delErr,
					map[string]interface{}{"mutation_id": m.ID})
				if storeErr == nil {
					storeErr = delErr
				}
				continue
			}
			result.Confirmed++
			if m.IsCreate() && outcome.ServerID != "" {
				e.bus.Publish(events.EntityCreated{
					EntityType: string(m.EntityType),
					TempID:     m.TempClientID.String(),
					ServerID:   outcome.ServerID,
					TripID:     m.TripID,
				})
			}
			e.bus.Publish(events.SyncSucceeded{Count: 1})

		case syncpkg.OutcomeRejected:
			if markErr := e.repo.MarkMutationRejected(m.ID, outcome.Reason); markErr != nil {
				logging.Error("Failed to mark mutation rejected", markErr,
					map[string]interface{}{"mutation_id": m.ID})
				if storeErr == nil {
					storeErr = markErr
				}
			}
			result.Rejected++
			// Subscribers roll back using the preserved original values.
			e.bus.Publish(events.SyncFailed{ClientError: true, Message: outcome.Reason})

		case syncpkg.OutcomeAuthFailure:
			logging.Warn("Mutation cycle aborted: authentication failed",
				map[string]interface{}{"detail": outcome.Detail})
			result.Aborted = true
			break loop

		case syncpkg.OutcomeRateLimited:
			logging.Warn("Mutation cycle aborted: server rate limited",
				map[string]interface{}{"detail": outcome.Detail})
			result.Aborted = true
			break loop

		default: // OutcomeTransient
			if attemptErr := e.repo.RecordMutationAttempt(m.ID, outcome.Detail); attemptErr != nil {
				logging.Error("Failed to record mutation attempt", attemptErr,
					map[string]interface{}{"mutation_id": m.ID})
				if storeErr == nil {
					storeErr = attemptErr
				}
			}
			result.Deferred++
			e.bus.Publish(events.SyncQueued{Count: 1})
		}
	}

	logging.Info("Mutation cycle finished", map[string]interface{}{
		"attempted": result.Attempted,
		"confirmed": result.Confirmed,
		"rejected":  result.Rejected,
		"deferred":  result.Deferred,
		"aborted":   result.Aborted,
	})
	return result, storeErr
}
