// Package server provides the HTTP API: file upload and ingestion, embedding
// job control, semantic search, and corpus status.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/config"
	"github.com/agridesk/sahayak/internal/embedjob"
	"github.com/agridesk/sahayak/internal/ingest"
	"github.com/agridesk/sahayak/internal/search"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
)

// WatchService manages the set of watched spool directories. Implemented by
// the fsnotify watcher; nil disables the watch endpoints.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Deps carries everything the HTTP layer needs. Store, Search, Importer,
// Queue, and Runner are required; the rest may be zero.
type Deps struct {
	Store      storage.Storage
	Search     *search.Service
	Importer   *ingest.Importer
	Queue      *ingest.Queue
	Runner     *embedjob.Runner
	Index      vector.Index
	Watch      WatchService
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
}

// Server is the HTTP server for the advisory record API.
type Server struct {
	store      storage.Storage
	search     *search.Service
	importer   *ingest.Importer
	queue      *ingest.Queue
	runner     *embedjob.Runner
	index      vector.Index
	watch      WatchService
	cfg        *config.Config
	cfgMu      sync.Mutex
	configPath string
	logger     *zap.Logger
	server     *http.Server
}

// New creates a server from its dependencies.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:      d.Store,
		search:     d.Search,
		importer:   d.Importer,
		queue:      d.Queue,
		runner:     d.Runner,
		index:      d.Index,
		watch:      d.Watch,
		cfg:        d.Config,
		configPath: d.ConfigPath,
		logger:     logger,
	}
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/status", s.handleStatus)
		r.Post("/search", s.handleSearch)
		r.Post("/search/fallback", s.handleSearchFallback)
		r.Get("/records/latest", s.handleLatestRecords)

		r.Route("/embeddings", func(r chi.Router) {
			r.Post("/start", s.handleEmbeddingsStart)
			r.Post("/pause", s.handleEmbeddingsPause)
			r.Post("/resume", s.handleEmbeddingsResume)
			r.Post("/stop", s.handleEmbeddingsStop)
			r.Post("/reset", s.handleEmbeddingsReset)
			r.Get("/status", s.handleEmbeddingsStatus)
			r.Get("/logs", s.handleEmbeddingsLogs)
			r.Delete("/logs", s.handleEmbeddingsLogsClear)
			r.Get("/config", s.handleEmbeddingsConfigGet)
			r.Post("/config", s.handleEmbeddingsConfigSet)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/status", s.handleQueueStatus)
			r.Post("/start", s.handleQueueStart)
			r.Post("/stop", s.handleQueueStop)
			r.Post("/clear", s.handleQueueClear)
		})

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	host, port := "localhost", 8080
	if s.cfg != nil {
		host, port = s.cfg.Server.Host, s.cfg.Server.Port
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
