// Package search answers semantic similarity queries over stored advisory
// records.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/config"
	"github.com/agridesk/sahayak/internal/embedding"
	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
)

// Service runs semantic search. Queries prefer the vector index and fall
// back to an exact scan of stored embeddings whenever the index path cannot
// serve them, so a missing or degraded index never breaks search.
type Service struct {
	store    storage.Storage
	embedder embedding.Embedder
	index    vector.Index
	cfg      config.SearchConfig
	logger   *zap.Logger
}

// NewService wires a search service. index may be nil, which forces the
// exact scan path; logger may be nil.
func NewService(store storage.Storage, embedder embedding.Embedder, index vector.Index, cfg config.SearchConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search embeds the query and returns the best-matching records. The index
// path overscans well beyond top_k, hydrates the candidates from the store,
// applies the filters, and re-ranks by exact cosine similarity.
func (s *Service) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	queryEmb, err := s.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if s.index != nil && s.index.Size() > 0 {
		results, err := s.viaIndex(ctx, q, queryEmb)
		if err == nil {
			return s.respond(q, results, models.SearchModeIndex, start), nil
		}
		s.logger.Warn("index search failed, falling back to exact scan",
			zap.String("query", q.Query),
			zap.Error(err))
	}

	results, err := s.exactScan(ctx, q, queryEmb)
	if err != nil {
		return nil, err
	}
	return s.respond(q, results, models.SearchModeExact, start), nil
}

// SearchExact answers the query with the exact scan alone, bypassing the
// vector index. Exposed so callers can cross-check index results.
func (s *Service) SearchExact(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	queryEmb, err := s.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := s.exactScan(ctx, q, queryEmb)
	if err != nil {
		return nil, err
	}
	return s.respond(q, results, models.SearchModeExact, start), nil
}

// Latest returns the most recently ingested records matching the filter,
// newest first. limit is normalized into the configured range.
func (s *Service) Latest(ctx context.Context, f *models.Filter, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if err := f.Compile(); err != nil {
		return nil, err
	}
	recs, err := s.store.LatestRecords(ctx, f, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest records: %w", err)
	}
	if f != nil && f.QueryRegex != "" {
		kept := recs[:0]
		for _, rec := range recs {
			if f.Match(rec) {
				kept = append(kept, rec)
			}
		}
		recs = kept
	}
	return recs, nil
}

// overscanK widens the candidate pool so post-filtering still leaves enough
// hits to fill top_k.
func (s *Service) overscanK(topK int) int {
	k := topK * s.cfg.OverscanFactor
	if k < s.cfg.OverscanFloor {
		k = s.cfg.OverscanFloor
	}
	return k
}

func (s *Service) viaIndex(ctx context.Context, q *models.SearchQuery, queryEmb []float32) ([]*models.SearchResult, error) {
	hits, err := s.index.Search(ctx, queryEmb, s.overscanK(q.TopK))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	recs, err := s.store.GetRecords(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.rank(q, queryEmb, recs), nil
}

func (s *Service) exactScan(ctx context.Context, q *models.SearchQuery, queryEmb []float32) ([]*models.SearchResult, error) {
	recs, err := s.store.FindEmbedded(ctx, &q.Filters, s.cfg.ExactScanCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded records: %w", err)
	}
	return s.rank(q, queryEmb, recs), nil
}

// rank filters the candidates, scores the survivors with exact cosine
// similarity, and keeps the best top_k. Records whose stored embedding does
// not match the query dimensionality are skipped. Ties break on record id
// so ordering is stable.
func (s *Service) rank(q *models.SearchQuery, queryEmb []float32, recs []*models.Record) []*models.SearchResult {
	results := make([]*models.SearchResult, 0, len(recs))
	for _, rec := range recs {
		if !rec.HasEmbedding() || !q.Filters.Match(rec) {
			continue
		}
		score, err := vector.Cosine(queryEmb, rec.Embedding)
		if err != nil {
			s.logger.Warn("skipping record with mismatched embedding",
				zap.String("record_id", rec.ID),
				zap.Error(err))
			continue
		}
		results = append(results, &models.SearchResult{Record: rec, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	return results
}

func (s *Service) respond(q *models.SearchQuery, results []*models.SearchResult, mode string, start time.Time) *models.SearchResponse {
	if results == nil {
		results = []*models.SearchResult{}
	}
	return &models.SearchResponse{
		Results:   results,
		Count:     len(results),
		Mode:      mode,
		QueryTime: time.Since(start).Milliseconds(),
		Query:     q.Query,
	}
}
