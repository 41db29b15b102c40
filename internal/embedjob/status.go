package embedjob

import (
	"time"

	"github.com/agridesk/sahayak/pkg/utils"
)

// Phase is the lifecycle state of the runner.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseRunning      Phase = "running"
	PhasePaused       Phase = "paused"
	PhaseStopping     Phase = "stopping"
	PhaseStopped      Phase = "stopped"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// Active reports whether a run currently owns the loop.
func (p Phase) Active() bool {
	switch p {
	case PhaseInitializing, PhaseRunning, PhasePaused, PhaseStopping:
		return true
	}
	return false
}

// Terminal reports whether the last run has ended.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseStopped, PhaseCompleted, PhaseFailed:
		return true
	}
	return false
}

// Status is a point-in-time snapshot of the runner. Building one never
// mutates run state.
type Status struct {
	Phase        Phase      `json:"phase"`
	IsRunning    bool       `json:"is_running"`
	IsPaused     bool       `json:"is_paused"`
	IsStopping   bool       `json:"is_stopping"`
	CurrentBatch int64      `json:"current_batch"`
	Total        int64      `json:"total_documents"`
	Processed    int64      `json:"processed_documents"`
	Succeeded    int64      `json:"success_count"`
	Failed       int64      `json:"failed_count"`
	Percent      float64    `json:"percent_complete"`
	SuccessRate  float64    `json:"success_rate"`
	FailureRate  float64    `json:"failure_rate"`
	DocsPerBatch float64    `json:"docs_per_batch"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	ElapsedMS    int64      `json:"elapsed_ms"`
	Elapsed      string     `json:"elapsed"`
	PausedMS     int64      `json:"paused_ms"`
	AvgDocMS     float64    `json:"avg_doc_ms"`
	ETAMS        int64      `json:"eta_ms"`
	ETA          string     `json:"eta,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Config       Config     `json:"config"`
}

// Event types delivered to observers.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventPaused    = "paused"
	EventResumed   = "resumed"
	EventStopped   = "stopped"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event describes a runner state change.
type Event struct {
	Type   string `json:"type"`
	Status Status `json:"status"`
}

// Observer receives runner events. Callbacks run outside the runner lock,
// sequentially, and should return quickly.
type Observer func(Event)

// windowSize is how many recent per-document durations feed the ETA.
const windowSize = 100

// durationWindow keeps the most recent per-document processing times.
type durationWindow struct {
	buf  []time.Duration
	next int
	full bool
}

func newDurationWindow(n int) *durationWindow {
	return &durationWindow{buf: make([]time.Duration, n)}
}

func (w *durationWindow) add(d time.Duration) {
	w.buf[w.next] = d
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

func (w *durationWindow) average() time.Duration {
	n := w.next
	if w.full {
		n = len(w.buf)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += w.buf[i]
	}
	return sum / time.Duration(n)
}

// statusFromRun derives the full snapshot from raw run counters. now lets the
// caller pin the clock.
func statusFromRun(phase Phase, cfg Config, run *runState, now time.Time) Status {
	st := Status{
		Phase:      phase,
		IsRunning:  phase.Active(),
		IsPaused:   phase == PhasePaused,
		IsStopping: phase == PhaseStopping,
		Config:     cfg,
	}
	if run == nil {
		st.Elapsed = utils.FormatDuration(0)
		return st
	}

	st.CurrentBatch = run.batch
	st.Total = run.total
	st.Processed = run.processed
	st.Succeeded = run.succeeded
	st.Failed = run.failed
	st.LastError = run.lastError

	if run.total > 0 {
		st.Percent = float64(run.processed) / float64(run.total) * 100
	}
	if run.processed > 0 {
		st.SuccessRate = float64(run.succeeded) / float64(run.processed) * 100
		st.FailureRate = float64(run.failed) / float64(run.processed) * 100
	}
	if run.batch > 0 {
		st.DocsPerBatch = float64(run.processed) / float64(run.batch)
	}

	started := run.startedAt
	st.StartedAt = &started
	elapsed := run.elapsed(now)
	st.ElapsedMS = elapsed.Milliseconds()
	st.Elapsed = utils.FormatDuration(elapsed)
	st.PausedMS = run.pausedTotal(now).Milliseconds()

	if avg := run.window.average(); avg > 0 {
		st.AvgDocMS = float64(avg.Microseconds()) / 1000
		remaining := run.total - run.processed
		if remaining > 0 {
			eta := time.Duration(remaining) * avg
			st.ETAMS = eta.Milliseconds()
			st.ETA = utils.FormatDuration(eta)
		}
	}
	return st
}
