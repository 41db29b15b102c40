package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/config"
	"github.com/agridesk/sahayak/internal/embedding"
	"github.com/agridesk/sahayak/internal/embedjob"
	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/storage"
)

// uploadExtensions are the file types accepted by the upload endpoint.
var uploadExtensions = map[string]bool{".csv": true, ".xlsx": true}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !uploadExtensions[ext] {
		s.respondError(w, http.StatusBadRequest, "unsupported file type "+ext+", want .csv or .xlsx")
		return
	}

	dst, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("saving upload failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := models.IngestOptions{
		ClearExisting:      formBool(r, "clear_existing", false),
		GenerateEmbeddings: formBool(r, "generate_embeddings", true),
		BatchSize:          formInt(r, "batch_size", 0),
	}
	s.logger.Debug("upload request",
		zap.String("filename", header.Filename),
		zap.Bool("clear_existing", opts.ClearExisting),
		zap.Bool("generate_embeddings", opts.GenerateEmbeddings))

	if formBool(r, "process_in_background", true) {
		task := s.queue.Enqueue(dst, header.Filename, opts)
		s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "queued",
			"task":   task,
			"queue":  s.queue.Status(),
		})
		return
	}

	result, err := s.importer.ImportFile(r.Context(), dst, opts, nil)
	if err != nil {
		s.logger.Error("import failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if opts.GenerateEmbeddings {
		go func() {
			if err := s.runner.Start(context.Background()); err != nil {
				s.logger.Warn("embedding run not started after import", zap.Error(err))
			}
		}()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "completed",
		"result": result,
	})
}

// saveUpload spools the uploaded file to the upload directory under a
// collision-free name and returns its path.
func (s *Server) saveUpload(file io.Reader, filename string) (string, error) {
	dir := os.TempDir()
	if s.cfg != nil && s.cfg.Storage.UploadDir != "" {
		dir = s.cfg.Storage.UploadDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, uuid.New().String()[:8]+"_"+filepath.Base(filename))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: store stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"total_records":    stats.TotalRecords,
		"embedded_records": stats.EmbeddedRecords,
		"embedding_job":    s.runner.Status(),
		"ingest_queue":     s.queue.Status(),
	}
	if s.index != nil {
		resp["vector_index_size"] = s.index.Size()
	}

	if s.cfg != nil {
		resp["config"] = map[string]interface{}{
			"embedding_provider":   s.cfg.Embedding.Provider,
			"embedding_dimensions": s.cfg.Embedding.Dimensions,
			"database_path":        s.cfg.Storage.DatabasePath,
			"vector_index_path":    s.cfg.Storage.VectorIndexPath,
			"upload_dir":           s.cfg.Storage.UploadDir,
		}
		diskBytes, err := storage.DiskUsageBytes(
			s.cfg.Storage.DatabasePath,
			s.cfg.Storage.VectorIndexPath,
			s.cfg.Storage.UploadDir,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, s.search.Search)
}

func (s *Server) handleSearchFallback(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, s.search.SearchExact)
}

func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request,
	run func(context.Context, *models.SearchQuery) (*models.SearchResponse, error)) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	response, err := run(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		if errors.Is(err, embedding.ErrBackendUnavailable) {
			s.respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleLatestRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := &models.Filter{
		State:      q.Get("state"),
		District:   q.Get("district"),
		Block:      q.Get("block"),
		Season:     q.Get("season"),
		Sector:     q.Get("sector"),
		Category:   q.Get("category"),
		Crop:       q.Get("crop"),
		QueryType:  q.Get("query_type"),
		QueryRegex: q.Get("query_regex"),
	}
	if raw := q.Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		f.Year = &v
	}
	if raw := q.Get("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "month must be an integer")
			return
		}
		f.Month = &v
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}
	if err := f.Compile(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.search.Latest(r.Context(), f, limit)
	if err != nil {
		s.logger.Error("latest records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*models.Record{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

func (s *Server) handleEmbeddingsStart(w http.ResponseWriter, r *http.Request) {
	cfg := s.runner.Config()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	if _, err := s.runner.Configure(cfg); err != nil {
		s.respondJobError(w, err)
		return
	}
	if err := s.runner.Start(r.Context()); err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, s.runner.Status())
}

func (s *Server) handleEmbeddingsPause(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Pause(); err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleEmbeddingsResume(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Resume(); err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleEmbeddingsStop(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Stop(); err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleEmbeddingsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Reset(); err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleEmbeddingsStatus(w http.ResponseWriter, r *http.Request) {
	st := s.runner.Status()
	if detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed")); !detailed {
		s.respondJSON(w, http.StatusOK, st)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      st,
		"recent_logs": s.runner.Logs(10, ""),
	})
}

func (s *Server) handleEmbeddingsLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}
	level := q.Get("level")
	switch level {
	case "", embedjob.LevelInfo, embedjob.LevelWarn, embedjob.LevelError:
	default:
		s.respondError(w, http.StatusBadRequest, "level must be info, warn, or error")
		return
	}
	logs := s.runner.Logs(limit, level)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleEmbeddingsLogsClear(w http.ResponseWriter, r *http.Request) {
	s.runner.ClearLogs()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleEmbeddingsConfigGet(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.runner.Config())
}

func (s *Server) handleEmbeddingsConfigSet(w http.ResponseWriter, r *http.Request) {
	// Decoding over the current config makes partial bodies keep the
	// remaining fields; unknown keys are rejected outright.
	cfg := s.runner.Config()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	applied, err := s.runner.Configure(cfg)
	if err != nil {
		s.respondJobError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, applied)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	s.queue.Start()
	s.respondJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleQueueStop(w http.ResponseWriter, r *http.Request) {
	s.queue.Stop()
	s.respondJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	cleared := s.queue.Clear()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": cleared,
		"queue":   s.queue.Status(),
	})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories mirrors the live watch roots back into the config
// file so they survive restarts. Failures are logged, not surfaced.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.cfg == nil {
		return
	}
	s.cfgMu.Lock()
	s.cfg.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.cfg)
	s.cfgMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondJobError maps embedding job errors onto HTTP statuses: lifecycle
// conflicts to 409, backend trouble to 502.
func (s *Server) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, embedjob.ErrAlreadyRunning),
		errors.Is(err, embedjob.ErrNotRunning),
		errors.Is(err, embedjob.ErrAlreadyPaused),
		errors.Is(err, embedjob.ErrNotPaused),
		errors.Is(err, embedjob.ErrBusy):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, embedding.ErrBackendUnavailable):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func formBool(r *http.Request, name string, def bool) bool {
	raw := r.FormValue(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func formInt(r *http.Request, name string, def int) int {
	raw := r.FormValue(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
