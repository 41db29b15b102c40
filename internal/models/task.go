package models

import "time"

// TaskStatus describes the lifecycle of an ingestion task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IngestOptions control how an uploaded file is imported.
type IngestOptions struct {
	ClearExisting      bool `json:"clear_existing"`
	GenerateEmbeddings bool `json:"generate_embeddings"`
	BatchSize          int  `json:"batch_size,omitempty"`
}

// IngestTask is one queued file import. Tasks live in memory only; they are
// mutated by the queue worker and exposed to the API as copies.
type IngestTask struct {
	ID          int64         `json:"id"`
	Filename    string        `json:"filename"`
	Path        string        `json:"-"`
	Options     IngestOptions `json:"options"`
	Status      TaskStatus    `json:"status"`
	Error       string        `json:"error,omitempty"`
	TotalRows   int           `json:"total_rows"`
	Processed   int           `json:"processed"`
	Inserted    int           `json:"inserted"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Progress    float64       `json:"progress_percent"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// UpdateProgress recomputes the derived percent from the row counters.
// Zero when the total is not yet known.
func (t *IngestTask) UpdateProgress() {
	if t.TotalRows <= 0 {
		t.Progress = 0
		return
	}
	t.Progress = float64(t.Processed) / float64(t.TotalRows) * 100
}

// Clone returns a copy safe to hand out while the worker keeps mutating the
// original.
func (t *IngestTask) Clone() *IngestTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// ImportResult summarizes one file import.
type ImportResult struct {
	TotalRows int   `json:"total_rows"`
	Inserted  int   `json:"inserted"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Cleared   int64 `json:"cleared,omitempty"`
	TookMS    int64 `json:"took_ms"`
}
