package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/models"
)

// EmbeddingStarter kicks off a background embedding run after an import that
// asked for one. Start is expected to reject when a run is already active;
// the queue only logs that rejection.
type EmbeddingStarter interface {
	Start(ctx context.Context) error
}

// QueueStatus is a point-in-time snapshot of the queue. Tasks holds every
// task still known to the queue, finished ones included; Current duplicates
// the in-flight entry for convenience.
type QueueStatus struct {
	Processing  bool                 `json:"processing"`
	Accepting   bool                 `json:"accepting"`
	QueueLength int                  `json:"queue_length"`
	Current     *models.IngestTask   `json:"current_task"`
	Tasks       []*models.IngestTask `json:"tasks"`
}

// Queue serializes file imports. Enqueue wakes the worker when it is idle;
// the worker drains tasks one at a time until the queue empties or Stop is
// called. Finished tasks stay visible through Status until cleared out by
// a fresh process.
type Queue struct {
	importer *Importer
	embedder EmbeddingStarter
	logger   *zap.Logger

	mu         sync.Mutex
	tasks      []*models.IngestTask // every known task, oldest first
	pending    []*models.IngestTask // queued subset, shares pointers with tasks
	current    *models.IngestTask
	processing bool
	accepting  bool
	nextID     int64
}

// NewQueue creates an idle queue that accepts tasks. embedder and logger may
// be nil.
func NewQueue(importer *Importer, embedder EmbeddingStarter, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		importer:  importer,
		embedder:  embedder,
		logger:    logger,
		accepting: true,
	}
}

// Enqueue appends a file to the queue and starts the worker if it is idle
// and processing is enabled. The returned task is a copy; follow progress
// through Status.
func (q *Queue) Enqueue(path, displayName string, opts models.IngestOptions) *models.IngestTask {
	q.mu.Lock()
	q.nextID++
	task := &models.IngestTask{
		ID:         q.nextID,
		Filename:   displayName,
		Path:       path,
		Options:    opts,
		Status:     models.TaskQueued,
		EnqueuedAt: time.Now(),
	}
	q.tasks = append(q.tasks, task)
	q.pending = append(q.pending, task)
	start := q.accepting && !q.processing
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	q.logger.Info("ingestion task enqueued",
		zap.Int64("task_id", task.ID),
		zap.String("file", displayName))
	if start {
		go q.run()
	}
	return task.Clone()
}

// Start re-enables processing after Stop and wakes the worker when tasks are
// waiting.
func (q *Queue) Start() {
	q.mu.Lock()
	q.accepting = true
	start := len(q.pending) > 0 && !q.processing
	if start {
		q.processing = true
	}
	q.mu.Unlock()
	if start {
		go q.run()
	}
}

// Stop disables processing. The in-flight task finishes; queued tasks stay
// put until Start.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.accepting = false
	q.mu.Unlock()
	q.logger.Info("ingestion queue stopped")
}

// Clear evicts queued tasks. The in-flight task and finished history are
// untouched. Returns the number of evicted tasks.
func (q *Queue) Clear() int {
	q.mu.Lock()
	n := len(q.pending)
	if n > 0 {
		drop := make(map[*models.IngestTask]bool, n)
		for _, t := range q.pending {
			drop[t] = true
		}
		kept := q.tasks[:0]
		for _, t := range q.tasks {
			if !drop[t] {
				kept = append(kept, t)
			}
		}
		q.tasks = kept
		q.pending = nil
	}
	q.mu.Unlock()

	if n > 0 {
		q.logger.Info("ingestion queue cleared", zap.Int("evicted", n))
	}
	return n
}

// Status returns a snapshot safe to serialize while the worker runs.
func (q *Queue) Status() *QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := &QueueStatus{
		Processing:  q.processing,
		Accepting:   q.accepting,
		QueueLength: len(q.pending),
		Current:     q.current.Clone(),
		Tasks:       make([]*models.IngestTask, 0, len(q.tasks)),
	}
	for _, t := range q.tasks {
		st.Tasks = append(st.Tasks, t.Clone())
	}
	return st
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if !q.accepting || len(q.pending) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.current = task
		q.mu.Unlock()

		q.process(task)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
	}
}

func (q *Queue) process(task *models.IngestTask) {
	started := time.Now()
	q.mu.Lock()
	task.Status = models.TaskProcessing
	task.StartedAt = &started
	q.mu.Unlock()
	q.logger.Info("ingestion task started",
		zap.Int64("task_id", task.ID),
		zap.String("file", task.Filename))

	res, err := q.importer.ImportFile(context.Background(), task.Path, task.Options, func(snap models.ImportResult) {
		q.mu.Lock()
		applyCounts(task, &snap)
		q.mu.Unlock()
	})

	finished := time.Now()
	q.mu.Lock()
	task.CompletedAt = &finished
	if res != nil {
		applyCounts(task, res)
	}
	if err != nil {
		task.Status = models.TaskFailed
		task.Error = err.Error()
	} else {
		task.Status = models.TaskCompleted
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("ingestion task failed",
			zap.Int64("task_id", task.ID),
			zap.String("file", task.Filename),
			zap.Error(err))
		return
	}
	q.logger.Info("ingestion task completed",
		zap.Int64("task_id", task.ID),
		zap.String("file", task.Filename),
		zap.Int("inserted", res.Inserted),
		zap.Int("failed", res.Failed),
		zap.Int64("took_ms", res.TookMS))

	// Fire and forget. A rejection because a run is already active is logged
	// and dropped; rows inserted here wait for the next run.
	if task.Options.GenerateEmbeddings && q.embedder != nil {
		go func() {
			if err := q.embedder.Start(context.Background()); err != nil {
				q.logger.Warn("embedding run not started after import", zap.Error(err))
			}
		}()
	}
}

func applyCounts(task *models.IngestTask, res *models.ImportResult) {
	task.TotalRows = res.TotalRows
	task.Inserted = res.Inserted
	task.Failed = res.Failed
	task.Skipped = res.Skipped
	task.Processed = res.Inserted + res.Failed + res.Skipped
	task.UpdateProgress()
}
