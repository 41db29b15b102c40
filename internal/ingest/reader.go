// Package ingest imports advisory records from CSV and XLSX exports and runs
// the task queue that feeds uploads into storage one file at a time.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
)

// Progress receives a running counter snapshot as insert batches complete.
type Progress func(snapshot models.ImportResult)

// Importer parses advisory exports and bulk-inserts them as records.
type Importer struct {
	store     storage.Storage
	index     vector.Index // optional; cleared together with the store
	batchSize int
	logger    *zap.Logger
}

// NewImporter creates an importer. index may be nil when no vector index is
// kept; batchSize <= 0 falls back to 100; logger may be nil.
func NewImporter(store storage.Storage, index vector.Index, batchSize int, logger *zap.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, index: index, batchSize: batchSize, logger: logger}
}

// ImportFile parses the file at path and inserts its rows as records.
// Individual row failures are counted, not fatal; only parse and
// infrastructure errors abort. progress may be nil. The returned result
// carries partial counts even on error.
func (imp *Importer) ImportFile(ctx context.Context, path string, opts models.IngestOptions, progress Progress) (*models.ImportResult, error) {
	start := time.Now()

	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file %s is empty", filepath.Base(path))
	}

	header := rows[0]
	cols := buildColumnMap(header)
	if !hasKnownColumn(cols) {
		return nil, fmt.Errorf("no recognized columns in header %v", header)
	}

	res := &models.ImportResult{TotalRows: len(rows) - 1}

	if opts.ClearExisting {
		cleared, err := imp.store.ClearRecords(ctx)
		if err != nil {
			return res, fmt.Errorf("clear existing records: %w", err)
		}
		if imp.index != nil {
			if err := imp.index.Clear(ctx); err != nil {
				return res, fmt.Errorf("clear vector index: %w", err)
			}
		}
		res.Cleared = cleared
		imp.logger.Info("cleared existing records before import", zap.Int64("cleared", cleared))
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = imp.batchSize
	}

	ingestedAt := time.Now()
	batch := make([]*models.Record, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		inserted, failed, err := imp.store.InsertRecords(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		res.Inserted += inserted
		res.Failed += failed
		batch = batch[:0]
		if progress != nil {
			progress(*res)
		}
		return nil
	}

	// Exports are often concatenations of smaller files; the header line
	// reappears mid-file and must not become a record.
	headerCell := strings.TrimSpace(header[0])
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			res.Skipped++
			continue
		}
		if headerCell != "" && strings.EqualFold(strings.TrimSpace(row[0]), headerCell) {
			res.Skipped++
			continue
		}
		batch = append(batch, recordFromRow(cols, row, ingestedAt))
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	res.TookMS = time.Since(start).Milliseconds()
	imp.logger.Info("file imported",
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", res.TotalRows),
		zap.Int("inserted", res.Inserted),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int64("took_ms", res.TookMS))
	return res, nil
}

// readRows loads all rows from a CSV or XLSX file. The first row is the header.
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // exports are frequently ragged
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// buildColumnMap resolves each header cell to a record field name.
// Unrecognized columns map to "" and are ignored.
func buildColumnMap(header []string) []string {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = canonicalField(h)
	}
	return cols
}

func hasKnownColumn(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return true
		}
	}
	return false
}

// canonicalField maps a header cell to a record field. Normalization drops
// case, spaces, and underscores, so "StateName", "state_name", and
// "statename" all resolve to the same field. "KccAns" is the answer column
// name used by the public Kisan Call Centre exports.
func canonicalField(header string) string {
	key := strings.TrimSpace(header)
	key = strings.TrimPrefix(key, "\ufeff")
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	switch key {
	case "state", "statename":
		return "state"
	case "district", "districtname":
		return "district"
	case "block", "blockname":
		return "block"
	case "season":
		return "season"
	case "sector":
		return "sector"
	case "category":
		return "category"
	case "crop":
		return "crop"
	case "querytype":
		return "query_type"
	case "querytext", "query":
		return "query_text"
	case "kccans", "answertext", "answer":
		return "answer_text"
	case "createdon", "createdat", "date":
		return "created_on"
	case "year":
		return "year"
	case "month":
		return "month"
	default:
		return ""
	}
}

// dateLayouts are tried in order against the created_on column. Exports mix
// ISO timestamps with regional day-first dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
	"01/02/2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// recordFromRow builds a record from one data row. Every cell is trimmed;
// an unparseable date falls back to the ingestion time and unparseable
// integers stay null.
func recordFromRow(cols []string, row []string, ingestedAt time.Time) *models.Record {
	rec := &models.Record{
		ID:        uuid.New().String(),
		CreatedAt: ingestedAt,
	}
	for i, cell := range row {
		if i >= len(cols) || cols[i] == "" {
			continue
		}
		v := strings.TrimSpace(cell)
		switch cols[i] {
		case "state":
			rec.State = v
		case "district":
			rec.District = v
		case "block":
			rec.Block = v
		case "season":
			rec.Season = v
		case "sector":
			rec.Sector = v
		case "category":
			rec.Category = v
		case "crop":
			rec.Crop = v
		case "query_type":
			rec.QueryType = v
		case "query_text":
			rec.QueryText = v
		case "answer_text":
			rec.AnswerText = v
		case "created_on":
			if t, ok := parseDate(v); ok {
				rec.CreatedOn = t
			}
		case "year":
			if n, err := strconv.Atoi(v); err == nil {
				rec.Year = &n
			}
		case "month":
			if n, err := strconv.Atoi(v); err == nil {
				rec.Month = &n
			}
		}
	}
	if rec.CreatedOn.IsZero() {
		rec.CreatedOn = ingestedAt
	}
	return rec
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
