// Package embedjob runs the background embedding generation job: a pausable,
// stoppable single-pass loop that embeds every stored record lacking a
// vector and reports progress, rates, and an ETA while it works.
package embedjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/embedding"
	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
)

// Transition errors. The HTTP layer maps these onto conflict responses.
var (
	ErrAlreadyRunning = errors.New("embedding run already active")
	ErrNotRunning     = errors.New("no embedding run active")
	ErrAlreadyPaused  = errors.New("embedding run already paused")
	ErrNotPaused      = errors.New("embedding run is not paused")
	ErrBusy           = errors.New("embedding run active; pause or stop it first")
)

// Runner owns the embedding generation state machine. One instance exists per
// process; Start enforces a single active run.
type Runner struct {
	store    storage.Storage
	embedder embedding.Embedder
	index    vector.Index // optional; kept in step with stored vectors
	logger   *zap.Logger
	logs     *logRing

	// backoffUnit scales the linear retry backoff; stopWait bounds Stop.
	// Shortened in tests.
	backoffUnit time.Duration
	stopWait    time.Duration

	mu        sync.Mutex
	cond      *sync.Cond
	phase     Phase
	cfg       Config
	run       *runState
	done      chan struct{}
	observers []Observer
}

// runState carries one run's counters. The counter block is guarded by the
// runner mutex; the paging fields at the bottom belong to the loop goroutine
// alone.
type runState struct {
	skipExisting bool
	dims         int
	wake         chan struct{}
	stopOnce     sync.Once

	total     int64
	processed int64
	succeeded int64
	failed    int64
	batch     int64
	startedAt time.Time
	endedAt   time.Time
	pausedAt  time.Time // zero unless currently paused
	pausedFor time.Duration
	window    *durationWindow
	lastError string

	attempted map[string]struct{}
	staleSkip int
}

// elapsed is wall time attributable to work: start until now (or the pause
// start, or the run end), minus accumulated pauses. Caller holds the lock.
func (run *runState) elapsed(now time.Time) time.Duration {
	end := now
	if !run.endedAt.IsZero() {
		end = run.endedAt
	} else if !run.pausedAt.IsZero() {
		end = run.pausedAt
	}
	d := end.Sub(run.startedAt) - run.pausedFor
	if d < 0 {
		return 0
	}
	return d
}

func (run *runState) pausedTotal(now time.Time) time.Duration {
	d := run.pausedFor
	if !run.pausedAt.IsZero() {
		d += now.Sub(run.pausedAt)
	}
	return d
}

// NewRunner creates an idle runner. index and logger may be nil; cfg is
// clamped.
func NewRunner(store storage.Storage, embedder embedding.Embedder, index vector.Index, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		store:       store,
		embedder:    embedder,
		index:       index,
		logger:      logger,
		logs:        newLogRing(defaultLogCapacity),
		backoffUnit: time.Second,
		stopWait:    30 * time.Second,
		phase:       PhaseIdle,
		cfg:         cfg.Clamp(),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start validates the backend, snapshots the workload, and launches the
// batch loop. It returns once the run is underway, or immediately when
// nothing needs embedding. Rejects with ErrAlreadyRunning while a run is
// active. Initialization failures move the runner to the failed phase and
// are returned to the caller.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.phase.Active() {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	cfg := r.cfg
	run := &runState{
		skipExisting: cfg.SkipExisting,
		wake:         make(chan struct{}),
		startedAt:    time.Now(),
		window:       newDurationWindow(windowSize),
		attempted:    make(map[string]struct{}),
	}
	done := make(chan struct{})
	r.phase = PhaseInitializing
	r.run = run
	r.done = done
	r.mu.Unlock()

	r.addLog(LevelInfo, "embedding run starting", nil)

	if err := r.initRun(ctx, run); err != nil {
		r.mu.Lock()
		run.lastError = err.Error()
		run.endedAt = time.Now()
		r.phase = PhaseFailed
		r.cond.Broadcast()
		r.mu.Unlock()
		close(done)
		r.addLog(LevelError, "initialization failed: "+err.Error(), nil)
		r.notify(EventFailed)
		return err
	}

	if run.total == 0 {
		r.mu.Lock()
		run.endedAt = time.Now()
		r.phase = PhaseCompleted
		r.cond.Broadcast()
		r.mu.Unlock()
		close(done)
		r.addLog(LevelInfo, "no documents need embeddings, run complete", nil)
		r.notify(EventCompleted)
		return nil
	}

	r.mu.Lock()
	r.phase = PhaseRunning
	r.cond.Broadcast()
	r.mu.Unlock()

	r.notify(EventStarted)
	go r.loop(run, done)
	return nil
}

// initRun readies the backend and takes the workload snapshot.
func (r *Runner) initRun(ctx context.Context, run *runState) error {
	if err := r.embedder.EnsureReady(ctx); err != nil {
		return fmt.Errorf("embedding backend not ready: %w", err)
	}
	run.dims = r.embedder.Dimensions()

	totalRecords, err := r.store.CountRecords(ctx, nil)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	need, err := r.store.CountNeedingEmbedding(ctx, run.skipExisting)
	if err != nil {
		return fmt.Errorf("count records needing embeddings: %w", err)
	}

	r.mu.Lock()
	run.total = need
	r.mu.Unlock()

	r.addLog(LevelInfo,
		fmt.Sprintf("run scope: %d records, %d already embedded, %d to process",
			totalRecords, totalRecords-need, need),
		map[string]interface{}{
			"total_records": totalRecords,
			"embedded":      totalRecords - need,
			"to_process":    need,
		})
	return nil
}

func (r *Runner) loop(run *runState, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		r.mu.Lock()
		for r.phase == PhasePaused {
			r.cond.Wait()
		}
		if r.phase == PhaseStopping {
			r.mu.Unlock()
			r.endRun(run, PhaseStopped, LevelInfo, "run stopped")
			return
		}
		if r.phase != PhaseRunning {
			r.mu.Unlock()
			return
		}
		if run.processed >= run.total {
			msg := fmt.Sprintf("run complete: %d succeeded, %d failed", run.succeeded, run.failed)
			r.mu.Unlock()
			r.endRun(run, PhaseCompleted, LevelInfo, msg)
			return
		}
		cfg := r.cfg
		offset := int(run.processed)
		if run.skipExisting {
			// Successes drop out of the filter; only this run's failures
			// still match ahead of the unattempted tail.
			offset = int(run.failed)
		}
		run.batch++
		batchNo := run.batch
		r.mu.Unlock()

		page, err := r.store.FindNeedingEmbedding(ctx, run.skipExisting, offset+run.staleSkip, cfg.BatchSize)
		if err != nil {
			r.endRun(run, PhaseFailed, LevelError, "fetching documents failed: "+err.Error())
			return
		}
		if len(page) == 0 {
			r.endRun(run, PhaseCompleted, LevelInfo, "no more documents match, run complete")
			return
		}

		// A batch fans out over at most cfg.Workers goroutines and drains
		// fully before the phase is re-checked; counter updates serialize
		// on the runner mutex.
		fresh := 0
		var wg sync.WaitGroup
		slots := make(chan struct{}, cfg.Workers)
		for _, rec := range page {
			if _, seen := run.attempted[rec.ID]; seen {
				continue
			}
			run.attempted[rec.ID] = struct{}{}
			fresh++
			wg.Add(1)
			slots <- struct{}{}
			go func(rec *models.Record) {
				defer wg.Done()
				defer func() { <-slots }()
				r.processDocument(ctx, run, rec, cfg)
			}(rec)
		}
		wg.Wait()
		if fresh == 0 {
			// The whole page was attempted already: concurrent writes
			// reordered the pages. Skip past it so the loop cannot spin.
			run.staleSkip += len(page)
			continue
		}

		r.notify(EventProgress)
		if batchNo%10 == 0 {
			st := r.Status()
			r.addLog(LevelInfo,
				fmt.Sprintf("progress: %.1f%% (%d/%d), %.1f%% success, eta %s",
					st.Percent, st.Processed, st.Total, st.SuccessRate, st.ETA), nil)
		}

		if cfg.DelayMS > 0 {
			r.sleepBetween(run, time.Duration(cfg.DelayMS)*time.Millisecond)
		}
	}
}

// endRun moves the runner to a terminal phase and tells the observers.
func (r *Runner) endRun(run *runState, phase Phase, level, msg string) {
	now := time.Now()
	r.mu.Lock()
	if !run.pausedAt.IsZero() {
		run.pausedFor += now.Sub(run.pausedAt)
		run.pausedAt = time.Time{}
	}
	run.endedAt = now
	if phase == PhaseFailed {
		run.lastError = msg
	}
	r.phase = phase
	r.cond.Broadcast()
	r.mu.Unlock()

	r.addLog(level, msg, nil)
	switch phase {
	case PhaseCompleted:
		r.notify(EventCompleted)
	case PhaseStopped:
		r.notify(EventStopped)
	case PhaseFailed:
		r.notify(EventFailed)
	}
}

// processDocument embeds one record with linear-backoff retries. Every
// outcome increments processed exactly once.
func (r *Runner) processDocument(ctx context.Context, run *runState, rec *models.Record, cfg Config) {
	start := time.Now()

	// A record that picked up a valid embedding between the page query and
	// now counts as a success without touching the backend again.
	if run.skipExisting && rec.HasEmbedding() && (run.dims == 0 || len(rec.Embedding) == run.dims) {
		r.recordSuccess(run, time.Since(start))
		return
	}

	text := rec.EmbeddingText()
	var lastErr error
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * r.backoffUnit)
		}
		lastErr = r.embedOnce(ctx, run, rec.ID, text)
		if lastErr == nil {
			r.recordSuccess(run, time.Since(start))
			return
		}
		if attempt < cfg.RetryAttempts {
			r.addLog(LevelWarn,
				fmt.Sprintf("attempt %d/%d failed for record %s: %v",
					attempt+1, cfg.RetryAttempts+1, rec.ID, lastErr),
				map[string]interface{}{"record_id": rec.ID, "attempt": attempt + 1})
		}
	}
	r.recordFailure(run, rec.ID, cfg.RetryAttempts+1, lastErr)
}

// embedOnce performs a single embed-and-persist attempt.
func (r *Runner) embedOnce(ctx context.Context, run *runState, id, text string) error {
	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	if run.dims > 0 && len(emb) != run.dims {
		return fmt.Errorf("%w: backend returned %d dimensions, want %d",
			vector.ErrDimensionMismatch, len(emb), run.dims)
	}
	if err := r.store.UpdateEmbedding(ctx, id, emb); err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	if r.index != nil {
		// Best effort: the index is rebuilt from the store at startup.
		if err := r.index.Add(ctx, []string{id}, [][]float32{emb}); err != nil {
			r.logger.Warn("vector index add failed", zap.String("record_id", id), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) recordSuccess(run *runState, took time.Duration) {
	r.mu.Lock()
	run.processed++
	run.succeeded++
	run.window.add(took)
	r.mu.Unlock()
}

func (r *Runner) recordFailure(run *runState, id string, attempts int, err error) {
	r.mu.Lock()
	run.processed++
	run.failed++
	run.lastError = err.Error()
	r.mu.Unlock()
	r.addLog(LevelError,
		fmt.Sprintf("record %s failed after %d attempts: %v", id, attempts, err),
		map[string]interface{}{"record_id": id})
}

// sleepBetween waits out the inter-batch delay, returning early on stop.
func (r *Runner) sleepBetween(run *runState, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-run.wake:
	}
}

// Pause suspends the loop once the in-flight batch finishes. Legal only
// while running.
func (r *Runner) Pause() error {
	r.mu.Lock()
	if r.phase == PhasePaused {
		r.mu.Unlock()
		return ErrAlreadyPaused
	}
	if r.phase != PhaseRunning {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.run.pausedAt = time.Now()
	r.phase = PhasePaused
	r.mu.Unlock()

	r.addLog(LevelInfo, "run paused", nil)
	r.notify(EventPaused)
	return nil
}

// Resume continues a paused run, folding the pause into the run's pause
// total.
func (r *Runner) Resume() error {
	r.mu.Lock()
	if r.phase != PhasePaused {
		r.mu.Unlock()
		return ErrNotPaused
	}
	run := r.run
	run.pausedFor += time.Since(run.pausedAt)
	run.pausedAt = time.Time{}
	r.phase = PhaseRunning
	r.cond.Broadcast()
	r.mu.Unlock()

	r.addLog(LevelInfo, "run resumed", nil)
	r.notify(EventResumed)
	return nil
}

// Stop asks the loop to end after the in-flight batch and waits for it,
// bounded by stopWait. Legal from running or paused.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.phase != PhaseRunning && r.phase != PhasePaused {
		r.mu.Unlock()
		return ErrNotRunning
	}
	run := r.run
	done := r.done
	r.phase = PhaseStopping
	r.cond.Broadcast()
	r.mu.Unlock()

	run.stopOnce.Do(func() { close(run.wake) })
	r.addLog(LevelInfo, "stop requested, waiting for the current batch", nil)

	select {
	case <-done:
		return nil
	case <-time.After(r.stopWait):
		return fmt.Errorf("run did not stop within %s", r.stopWait)
	}
}

// Status returns a snapshot. Safe to call from any goroutine at any time;
// never mutates run state.
func (r *Runner) Status() Status {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return statusFromRun(r.phase, r.cfg, r.run, now)
}

// Configure replaces the pacing configuration, clamping out-of-range values,
// and returns what was applied. Rejected with ErrBusy while a run is active
// and not paused; changes made during a pause take effect on resume, except
// skip_existing, which is pinned for the run.
func (r *Runner) Configure(cfg Config) (Config, error) {
	r.mu.Lock()
	if r.phase.Active() && r.phase != PhasePaused {
		current := r.cfg
		r.mu.Unlock()
		return current, ErrBusy
	}
	applied := cfg.Clamp()
	r.cfg = applied
	r.mu.Unlock()

	r.addLog(LevelInfo,
		fmt.Sprintf("configuration applied: batch %d, delay %dms, retries %d, workers %d",
			applied.BatchSize, applied.DelayMS, applied.RetryAttempts, applied.Workers), nil)
	return applied, nil
}

// Config returns the current pacing configuration.
func (r *Runner) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Reset clears the last run's counters and returns the runner to idle.
// Rejected while a run is active.
func (r *Runner) Reset() error {
	r.mu.Lock()
	if r.phase.Active() {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.run = nil
	r.phase = PhaseIdle
	r.mu.Unlock()
	r.addLog(LevelInfo, "state reset", nil)
	return nil
}

// Logs returns up to limit ring entries, newest first, optionally filtered
// by level.
func (r *Runner) Logs(limit int, level string) []LogEntry {
	return r.logs.recent(limit, level)
}

// ClearLogs empties the ring, leaving a single marker entry behind.
func (r *Runner) ClearLogs() {
	r.logs.clear()
	r.addLog(LevelInfo, "logs cleared", nil)
}

// Subscribe registers an observer for lifecycle and progress events.
func (r *Runner) Subscribe(obs Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, obs)
	r.mu.Unlock()
}

func (r *Runner) notify(eventType string) {
	r.mu.Lock()
	obs := make([]Observer, len(r.observers))
	copy(obs, r.observers)
	r.mu.Unlock()
	if len(obs) == 0 {
		return
	}
	ev := Event{Type: eventType, Status: r.Status()}
	for _, fn := range obs {
		fn(ev)
	}
}

// addLog appends to the bounded ring and mirrors the entry to the process
// logger. Never called with the runner lock held.
func (r *Runner) addLog(level, msg string, data map[string]interface{}) {
	r.mu.Lock()
	var batch, processed int64
	if r.run != nil {
		batch = r.run.batch
		processed = r.run.processed
	}
	r.mu.Unlock()

	r.logs.append(LogEntry{
		Time:      time.Now(),
		Level:     level,
		Message:   msg,
		Batch:     batch,
		Processed: processed,
		Data:      data,
	})

	fields := []zap.Field{zap.Int64("batch", batch), zap.Int64("processed", processed)}
	if data != nil {
		fields = append(fields, zap.Any("data", data))
	}
	switch level {
	case LevelWarn:
		r.logger.Warn(msg, fields...)
	case LevelError:
		r.logger.Error(msg, fields...)
	default:
		r.logger.Info(msg, fields...)
	}
}
