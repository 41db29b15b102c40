// Package storage defines the persistence interface for advisory records.
package storage

import (
	"context"

	"github.com/agridesk/sahayak/internal/models"
)

// Stats summarizes the stored corpus.
type Stats struct {
	TotalRecords    int64 `json:"total_records"`
	EmbeddedRecords int64 `json:"embedded_records"`
	DiskUsageBytes  int64 `json:"disk_usage_bytes"`
}

// Storage defines record persistence operations.
type Storage interface {
	// Bulk ingestion. Individual row failures are tolerated and counted;
	// only infrastructure errors abort.
	InsertRecords(ctx context.Context, recs []*models.Record) (inserted, failed int, err error)

	// Counting and paging. The regex part of a filter is evaluated by
	// callers in process; everything else is pushed into SQL.
	CountRecords(ctx context.Context, f *models.Filter) (int64, error)
	CountNeedingEmbedding(ctx context.Context, skipExisting bool) (int64, error)
	FindNeedingEmbedding(ctx context.Context, skipExisting bool, offset, limit int) ([]*models.Record, error)

	// Embedding lifecycle.
	UpdateEmbedding(ctx context.Context, id string, emb []float32) error
	EachEmbedding(ctx context.Context, fn func(id string, emb []float32) error) error

	// Search support.
	GetRecords(ctx context.Context, ids []string) ([]*models.Record, error)
	FindEmbedded(ctx context.Context, f *models.Filter, limit int) ([]*models.Record, error)
	LatestRecords(ctx context.Context, f *models.Filter, limit int) ([]*models.Record, error)

	// Maintenance.
	ClearRecords(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
