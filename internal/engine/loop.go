package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alihub/ali-intent/internal/metrics"
)

// Start launches the background scheduler loop and the nightly maintenance
// cron. Calling Start on a running engine is a logged no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn("Background processing already running")
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.cron = cron.New()
	e.mu.Unlock()

	// Nightly pattern expiry at 3 AM, bounding accumulation of stale
	// discovered routines.
	e.cron.AddFunc("0 3 * * *", func() {
		cutoff := e.now().Add(-e.cfg.Engine.GetPatternMaxAge())
		if removed := e.patterns.Expire(cutoff); removed > 0 {
			e.logger.Info("Expired stale behavior patterns", "removed", removed)
		}
	})
	e.cron.Start()

	go e.run()
	e.logger.Info("Intent background processing started")
}

// Stop requests a cooperative halt and waits up to the configured timeout
// for the loop to finish its current cycle. A timed-out join is best
// effort: the loop still exits at its next cycle boundary. The final state
// is flushed either way.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	if e.cron != nil {
		e.cron.Stop()
	}

	select {
	case <-e.doneCh:
	case <-time.After(e.cfg.Engine.GetStopTimeout()):
		e.logger.Warn("Timed out waiting for background loop; it will exit after its current cycle")
	}

	e.flush()
	e.logger.Info("Intent background processing stopped")
}

// Running reports whether the background loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// run is the scheduler loop. A failed cycle is logged and followed by a
// longer backoff; only Stop terminates the loop.
func (e *Engine) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.Engine.GetCycleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.safeCycle(); err != nil {
				metrics.LoopErrors.Inc()
				e.logger.Error("Error in intent background loop", "error", err)
				select {
				case <-e.stopCh:
					return
				case <-time.After(e.cfg.Engine.GetErrorBackoff()):
				}
			}
		}
	}
}

func (e *Engine) safeCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	e.cycle(e.now())
	return nil
}

// cycle is one sweep: due tasks, recurring tasks, sampled mining, and a
// sampled flush that only runs when state actually changed.
func (e *Engine) cycle(now time.Time) {
	metrics.SweepsRun.Inc()
	e.sweepDue(now)
	e.sweepRecurring(now)
	if e.roll() < e.cfg.Engine.MiningProbability {
		e.mine(now)
	}
	if e.roll() < e.cfg.Engine.PersistProbability && e.dirty.Load() {
		e.flush()
	}
}

// sweepDue executes every due one-shot task at most once and settles the
// queue per each task's remove-on-failure policy.
func (e *Engine) sweepDue(now time.Time) {
	for _, t := range e.store.Due(now) {
		ok := e.execute(t, now)
		if err := e.store.Resolve(t.ID, ok, e.cfg.Engine.MaxAttempts); err != nil {
			// Removed concurrently between snapshot and resolve; already settled.
			continue
		}
	}
}

// sweepRecurring fires every recurring task whose rule matches and spawns
// its one-shot copy. The recurring record is never consumed.
func (e *Engine) sweepRecurring(now time.Time) {
	for _, rt := range e.store.Recurring() {
		if !rt.ShouldFire(now, e.roll(), e.cfg.Engine.PatternFireProb) {
			continue
		}
		spawned, err := e.store.Fire(rt.ID, now)
		if err != nil {
			continue
		}
		metrics.RecurringFires.WithLabelValues(rt.Recurrence.Kind()).Inc()
		e.broadcast("recurring_fired", map[string]any{
			"recurring_id": rt.ID,
			"task_id":      spawned.ID,
			"type":         spawned.Type,
		})
	}
}

// mine runs the pattern miner over the recent behavior window and merges
// candidates that clear the routine threshold.
func (e *Engine) mine(now time.Time) {
	e.logger.Info("Analyzing behavior patterns")
	window := e.ledger.Recent(50)
	candidates := e.miner.Mine(window, now)

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Confidence >= e.thresholds.Routine {
			kept = append(kept, c)
		}
	}

	added := e.patterns.Merge(kept, now)
	if added == 0 {
		return
	}
	metrics.PatternsDiscovered.Add(float64(added))
	e.logger.Info("Identified new behavior patterns", "count", added)
	e.broadcast("patterns_discovered", map[string]any{"count": added})
	e.flush()
}
