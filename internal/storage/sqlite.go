// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/vector"
)

// SQLiteStorage implements Storage using SQLite. Embeddings are stored as
// little-endian float32 BLOBs in the records table.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT '',
		district TEXT NOT NULL DEFAULT '',
		block TEXT NOT NULL DEFAULT '',
		season TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		crop TEXT NOT NULL DEFAULT '',
		query_type TEXT NOT NULL DEFAULT '',
		query_text TEXT NOT NULL DEFAULT '',
		answer_text TEXT NOT NULL DEFAULT '',
		created_on TIMESTAMP NOT NULL,
		year INTEGER,
		month INTEGER,
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
	CREATE INDEX IF NOT EXISTS idx_records_year_month ON records(year, month);
	CREATE INDEX IF NOT EXISTS idx_records_needs_embedding ON records(id) WHERE embedding IS NULL;
	`
	_, err := db.Exec(schema)
	return err
}

const recordCols = `id, state, district, block, season, sector, category, crop,
	query_type, query_text, answer_text, created_on, year, month, embedding, created_at`

// InsertRecords inserts records in one transaction. Failures of individual
// rows (duplicate id, constraint violation) are counted and skipped; only
// transaction-level errors abort.
func (s *SQLiteStorage) InsertRecords(ctx context.Context, recs []*models.Record) (int, int, error) {
	if len(recs) == 0 {
		return 0, 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (`+recordCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	inserted, failed := 0, 0
	for _, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.State, rec.District, rec.Block, rec.Season, rec.Sector,
			rec.Category, rec.Crop, rec.QueryType, rec.QueryText, rec.AnswerText,
			rec.CreatedOn, nullableInt(rec.Year), nullableInt(rec.Month),
			vector.EncodeEmbedding(rec.Embedding), rec.CreatedAt,
		)
		if err != nil {
			failed++
			continue
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit insert tx: %w", err)
	}
	return inserted, failed, nil
}

// CountRecords returns the number of records matching the filter.
func (s *SQLiteStorage) CountRecords(ctx context.Context, f *models.Filter) (int64, error) {
	where, args := filterClauses(f, nil)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`+where, args...).Scan(&count)
	return count, err
}

// CountNeedingEmbedding counts the documents a generation run would process.
// With skipExisting, only rows without an embedding count; otherwise every row.
func (s *SQLiteStorage) CountNeedingEmbedding(ctx context.Context, skipExisting bool) (int64, error) {
	q := `SELECT COUNT(*) FROM records`
	if skipExisting {
		q += ` WHERE embedding IS NULL`
	}
	var count int64
	err := s.db.QueryRowContext(ctx, q).Scan(&count)
	return count, err
}

// FindNeedingEmbedding pages over the documents a generation run processes,
// in stable id order.
func (s *SQLiteStorage) FindNeedingEmbedding(ctx context.Context, skipExisting bool, offset, limit int) ([]*models.Record, error) {
	q := `SELECT ` + recordCols + ` FROM records`
	if skipExisting {
		q += ` WHERE embedding IS NULL`
	}
	q += ` ORDER BY id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// UpdateEmbedding stores the embedding for one record. An empty vector
// clears it.
func (s *SQLiteStorage) UpdateEmbedding(ctx context.Context, id string, emb []float32) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE records SET embedding = ? WHERE id = ?`,
		vector.EncodeEmbedding(emb), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record not found: %s", id)
	}
	return nil
}

// EachEmbedding streams every stored (id, embedding) pair, for index rebuilds.
func (s *SQLiteStorage) EachEmbedding(ctx context.Context, fn func(id string, emb []float32) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM records WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		emb, err := vector.DecodeEmbedding(blob)
		if err != nil || len(emb) == 0 {
			continue
		}
		if err := fn(id, emb); err != nil {
			return err
		}
	}
	return rows.Err()
}

// GetRecords returns the records for the given ids. Unknown ids are
// silently absent from the result.
func (s *SQLiteStorage) GetRecords(ctx context.Context, ids []string) ([]*models.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM records WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FindEmbedded returns up to limit records that carry an embedding and match
// the filter, in stable id order.
func (s *SQLiteStorage) FindEmbedded(ctx context.Context, f *models.Filter, limit int) ([]*models.Record, error) {
	where, args := filterClauses(f, []string{"embedding IS NOT NULL"})
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM records`+where+` ORDER BY id LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LatestRecords returns the most recently ingested records matching the filter.
func (s *SQLiteStorage) LatestRecords(ctx context.Context, f *models.Filter, limit int) ([]*models.Record, error) {
	where, args := filterClauses(f, nil)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM records`+where+` ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ClearRecords deletes every record and returns how many were removed.
func (s *SQLiteStorage) ClearRecords(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats returns corpus counts and on-disk size (including WAL sidecars).
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.TotalRecords); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE embedding IS NOT NULL`).Scan(&st.EmbeddedRecords); err != nil {
		return nil, err
	}
	size, err := DiskUsageBytes(s.dbPath, s.dbPath+"-wal", s.dbPath+"-shm")
	if err != nil {
		return nil, err
	}
	st.DiskUsageBytes = size
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// filterClauses translates the SQL-expressible parts of a filter (substring
// fields and year/month) into a WHERE clause. QueryRegex is left to callers.
func filterClauses(f *models.Filter, extra []string) (string, []interface{}) {
	conds := append([]string{}, extra...)
	var args []interface{}
	if f != nil {
		add := func(col, val string) {
			if val == "" {
				return
			}
			conds = append(conds, `LOWER(`+col+`) LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(strings.ToLower(val))+"%")
		}
		add("state", f.State)
		add("district", f.District)
		add("block", f.Block)
		add("season", f.Season)
		add("sector", f.Sector)
		add("category", f.Category)
		add("crop", f.Crop)
		add("query_type", f.QueryType)
		if f.Year != nil {
			conds = append(conds, "year = ?")
			args = append(args, *f.Year)
		}
		if f.Month != nil {
			conds = append(conds, "month = ?")
			args = append(args, *f.Month)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func scanRecords(rows *sql.Rows) ([]*models.Record, error) {
	var recs []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(rows *sql.Rows) (*models.Record, error) {
	var rec models.Record
	var year, month sql.NullInt64
	var blob []byte
	err := rows.Scan(
		&rec.ID, &rec.State, &rec.District, &rec.Block, &rec.Season, &rec.Sector,
		&rec.Category, &rec.Crop, &rec.QueryType, &rec.QueryText, &rec.AnswerText,
		&rec.CreatedOn, &year, &month, &blob, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if year.Valid {
		v := int(year.Int64)
		rec.Year = &v
	}
	if month.Valid {
		v := int(month.Int64)
		rec.Month = &v
	}
	// A malformed blob degrades to "no embedding" rather than failing the read.
	if emb, err := vector.DecodeEmbedding(blob); err == nil {
		rec.Embedding = emb
	}
	return &rec, nil
}
