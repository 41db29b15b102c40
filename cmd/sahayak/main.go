// Package main is the Sahayak CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/cli"
	"github.com/agridesk/sahayak/internal/config"
	"github.com/agridesk/sahayak/internal/embedding"
	"github.com/agridesk/sahayak/internal/embedjob"
	"github.com/agridesk/sahayak/internal/ingest"
	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/search"
	"github.com/agridesk/sahayak/internal/server"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
	"github.com/agridesk/sahayak/internal/watcher"
	"github.com/agridesk/sahayak/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/sahayak/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "sahayak server" from the project dir uses the
// project's config. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A .env next to the binary can hold the embedding API key; missing is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "latest":
		runLatest()
	case "embed":
		runEmbed()
	case "watch":
		runWatch()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("sahayak version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Spooled files are imported once per drop, so existing spool contents
	// are not re-synced at boot unless watch.sync_on_start is set; the watch
	// API with sync covers one-off drains.
	watchSvc := watcher.New(
		components.Queue,
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		models.IngestOptions{GenerateEmbeddings: true},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	if cfg.Watch.SyncOnStart {
		watchSvc.SyncExistingFiles()
	}

	srv := server.New(server.Deps{
		Store:      components.Store,
		Search:     components.Search,
		Importer:   components.Importer,
		Queue:      components.Queue,
		Runner:     components.Runner,
		Index:      components.Index,
		Watch:      watchSvc,
		Config:     cfg,
		ConfigPath: resolvedConfigPath,
		Logger:     logger,
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if err := components.Runner.Stop(); err == nil {
		logger.Info("embedding run stopped for shutdown")
	}
	saveIndex(cfg, components.Index, logger)
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func saveIndex(cfg *config.Config, index *vector.MemoryIndex, logger *zap.Logger) {
	if cfg.Storage.VectorIndexPath == "" || index == nil {
		return
	}
	if err := index.Save(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index save failed",
			zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	clearExisting := fs.Bool("clear", false, "clear existing records before import")
	embed := fs.Bool("embed", true, "run the embedding job after import")
	batchSize := fs.Int("batch-size", 0, "insert batch size (0 = config default)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: sahayak ingest [flags] <file.csv|file.xlsx>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	opts := models.IngestOptions{ClearExisting: *clearExisting, BatchSize: *batchSize}
	result, err := components.Importer.ImportFile(ctx, path, opts, func(snapshot models.ImportResult) {
		fmt.Printf("\rinserted %d of %d rows...", snapshot.Inserted, snapshot.TotalRows)
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %s: %d inserted, %d failed, %d skipped of %d rows in %dms\n",
		filepath.Base(path), result.Inserted, result.Failed, result.Skipped,
		result.TotalRows, result.TookMS)

	if !*embed {
		return
	}
	if err := components.Runner.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Embedding run failed to start: %v\n", err)
		os.Exit(1)
	}
	final := waitForRunner(components.Runner)
	fmt.Printf("Embedding run %s: %d succeeded, %d failed in %s\n",
		final.Phase, final.Succeeded, final.Failed, final.Elapsed)
	saveIndex(cfg, components.Index, logger)
	if final.Phase == embedjob.PhaseFailed {
		os.Exit(1)
	}
}

// waitForRunner polls the embedding job until it reaches a terminal phase,
// printing a one-line progress ticker.
func waitForRunner(runner *embedjob.Runner) embedjob.Status {
	for {
		st := runner.Status()
		if st.Phase.Terminal() {
			fmt.Println()
			return st
		}
		if st.Total > 0 {
			fmt.Printf("\rembedding %d/%d (%.1f%%) eta %s   ",
				st.Processed, st.Total, st.Percent, st.ETA)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// buildSearchQueryText joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQueryText(args []string) string {
	return utils.CollapseWhitespace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "sahayak search \"query\"
// -top-k 5" would otherwise leave -top-k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: sahayak search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Filters narrow results by record metadata before ranking; location and topic
filters are case-insensitive substring matches.

Examples:
  sahayak search paddy leaf spots
  sahayak search "paddy leaf spots"             # same as above
  sahayak search --state punjab --crop paddy blast treatment
  sahayak search --exact rainfall forecast       # skip the vector index
  sahayak search --output json market price of wheat
`)
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage when server is not running)")
	topK := fs.Int("top-k", 10, "number of results")
	exact := fs.Bool("exact", false, "use the exact cosine scan instead of the vector index")
	state := fs.String("state", "", "filter by state")
	district := fs.String("district", "", "filter by district")
	category := fs.String("category", "", "filter by category")
	crop := fs.String("crop", "", "filter by crop")
	queryType := fs.String("query-type", "", "filter by query type")
	year := fs.Int("year", 0, "filter by year")
	month := fs.Int("month", 0, "filter by month")
	queryRegex := fs.String("regex", "", "filter query text by regular expression")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	queryStr := buildSearchQueryText(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	case "compact":
		format = cli.OutputCompact
	default:
		fmt.Printf("Unknown output format %q; use text, compact, or json\n", *outputFormat)
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query: queryStr,
		TopK:  *topK,
		Filters: models.Filter{
			State:      *state,
			District:   *district,
			Category:   *category,
			Crop:       *crop,
			QueryType:  *queryType,
			QueryRegex: *queryRegex,
		},
	}
	if *year != 0 {
		query.Filters.Year = year
	}
	if *month != 0 {
		query.Filters.Month = month
	}

	if *serverURL != "" {
		endpoint := "/api/v1/search"
		if *exact {
			endpoint = "/api/v1/search/fallback"
		}
		var response models.SearchResponse
		if err := apiPost(*serverURL+endpoint, query, &response); err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, &response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when the server is not running).
	cfg, _, err := loadConfig(*configPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	run := components.Search.Search
	if *exact {
		run = components.Search.SearchExact
	}
	response, err := run(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	TotalRecords    int64                  `json:"total_records"`
	EmbeddedRecords int64                  `json:"embedded_records"`
	VectorIndexSize int                    `json:"vector_index_size"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	EmbeddingJob    *embedjob.Status       `json:"embedding_job,omitempty"`
	IngestQueue     *ingest.QueueStatus    `json:"ingest_queue,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := apiGet(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		stats, err := components.Store.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Store stats failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			TotalRecords:    stats.TotalRecords,
			EmbeddedRecords: stats.EmbeddedRecords,
			VectorIndexSize: components.Index.Size(),
			Config: map[string]interface{}{
				"embedding_provider":   cfg.Embedding.Provider,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"database_path":        cfg.Storage.DatabasePath,
				"vector_index_path":    cfg.Storage.VectorIndexPath,
			},
		}
		diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath, cfg.Storage.UploadDir)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("total_records:      %d\n", status.TotalRecords)
		fmt.Printf("embedded_records:   %d\n", status.EmbeddedRecords)
		fmt.Printf("vector_index_size:  %d\n", status.VectorIndexSize)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
		if status.EmbeddingJob != nil {
			fmt.Printf("embedding_job:      %s", status.EmbeddingJob.Phase)
			if status.EmbeddingJob.Total > 0 {
				fmt.Printf(" (%d/%d, %.1f%%)",
					status.EmbeddingJob.Processed, status.EmbeddingJob.Total, status.EmbeddingJob.Percent)
			}
			fmt.Println()
		}
		if status.IngestQueue != nil {
			fmt.Printf("ingest_queue:       %d pending", status.IngestQueue.QueueLength)
			if status.IngestQueue.Current != nil {
				fmt.Printf(", processing %s", status.IngestQueue.Current.Filename)
			}
			fmt.Println()
		}
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"embedding_provider", "embedding_dimensions", "database_path", "vector_index_path", "upload_dir"} {
				if v, ok := status.Config[key]; ok && v != "" {
					fmt.Printf("%-20s%v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runLatest() {
	fs := flag.NewFlagSet("latest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	limit := fs.Int("limit", 20, "number of records")
	state := fs.String("state", "", "filter by state")
	district := fs.String("district", "", "filter by district")
	category := fs.String("category", "", "filter by category")
	crop := fs.String("crop", "", "filter by crop")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	if *serverURL != "" {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(*limit))
		for key, val := range map[string]string{
			"state": *state, "district": *district, "category": *category, "crop": *crop,
		} {
			if val != "" {
				params.Set(key, val)
			}
		}
		var out struct {
			Records []*models.Record `json:"records"`
		}
		if err := apiGet(*serverURL+"/api/v1/records/latest?"+params.Encode(), &out); err != nil {
			fmt.Fprintf(os.Stderr, "Latest failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteRecords(os.Stdout, out.Records, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	f := &models.Filter{State: *state, District: *district, Category: *category, Crop: *crop}
	recs, err := components.Search.Latest(context.Background(), f, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Latest failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRecords(os.Stdout, recs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runEmbed() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: sahayak embed <start|pause|resume|stop|reset|status|logs> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	batchSize := fs.Int("batch-size", 0, "documents per batch (start)")
	delayMS := fs.Int("delay-ms", 0, "pause between batches in milliseconds (start)")
	retry := fs.Int("retry", 0, "retry attempts per document (start)")
	workers := fs.Int("workers", 0, "concurrent workers (start)")
	skipExisting := fs.String("skip-existing", "", "skip already-embedded documents: true or false (start)")
	limit := fs.Int("limit", 20, "log entries to show (logs)")
	level := fs.String("level", "", "log level filter: info, warn, or error (logs)")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "start":
		// Only explicitly set flags go in the body; the server keeps the
		// rest of the running config.
		body := map[string]interface{}{}
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "batch-size":
				body["batch_size"] = *batchSize
			case "delay-ms":
				body["delay_ms"] = *delayMS
			case "retry":
				body["retry_attempts"] = *retry
			case "workers":
				body["workers"] = *workers
			case "skip-existing":
				body["skip_existing"] = *skipExisting == "true"
			}
		})
		var st embedjob.Status
		if err := apiPost(*serverURL+"/api/v1/embeddings/start", body, &st); err != nil {
			fmt.Fprintf(os.Stderr, "Start failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Embedding run started: %d documents\n", st.Total)
	case "pause", "resume", "stop", "reset":
		var st embedjob.Status
		if err := apiPost(*serverURL+"/api/v1/embeddings/"+sub, nil, &st); err != nil {
			fmt.Fprintf(os.Stderr, "Embed %s failed: %v\n", sub, err)
			os.Exit(1)
		}
		fmt.Printf("Embedding job is now %s\n", st.Phase)
	case "status":
		var st embedjob.Status
		if err := apiGet(*serverURL+"/api/v1/embeddings/status", &st); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("phase:      %s\n", st.Phase)
		fmt.Printf("progress:   %d/%d (%.1f%%)\n", st.Processed, st.Total, st.Percent)
		fmt.Printf("succeeded:  %d\n", st.Succeeded)
		fmt.Printf("failed:     %d\n", st.Failed)
		fmt.Printf("elapsed:    %s\n", st.Elapsed)
		if st.ETA != "" {
			fmt.Printf("eta:        %s\n", st.ETA)
		}
		if st.LastError != "" {
			fmt.Printf("last_error: %s\n", st.LastError)
		}
	case "logs":
		var out struct {
			Logs []embedjob.LogEntry `json:"logs"`
		}
		endpoint := fmt.Sprintf("%s/api/v1/embeddings/logs?limit=%d&level=%s", *serverURL, *limit, url.QueryEscape(*level))
		if err := apiGet(endpoint, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Logs failed: %v\n", err)
			os.Exit(1)
		}
		for _, entry := range out.Logs {
			fmt.Printf("%s [%s] %s\n", entry.Time.Format(time.RFC3339), entry.Level, entry.Message)
		}
	default:
		fmt.Printf("Unknown embed subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: sahayak watch <add|remove|list> [path]")
		fmt.Println("  sahayak watch add <path>     Add spool directory to watch")
		fmt.Println("  sahayak watch remove <path>  Remove spool directory from watch")
		fmt.Println("  sahayak watch list           List watched spool directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	syncExisting := fs.Bool("sync", true, "import files already in the directory (add)")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: sahayak watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		var out map[string]string
		body := map[string]interface{}{"path": path, "sync": *syncExisting}
		if err := apiPostExpect(*serverURL+"/api/v1/watch/directories", body, &out, http.StatusCreated); err != nil {
			fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: sahayak watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := apiGet(*serverURL+"/api/v1/watch/directories", &out); err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runConfig() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: sahayak config init [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	switch sub {
	case "init":
		runConfigInit()
	default:
		fmt.Printf("Unknown config subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// runConfigInit writes a starter config file with every default filled in.
func runConfigInit() {
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	output := fs.String("output", "config.yaml", "where to write the starter config")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[3:])

	path, err := filepath.Abs(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve path: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists; use --force to overwrite\n", path)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directory: %v\n", err)
		os.Exit(1)
	}

	var cfg config.Config
	config.ApplyDefaults(&cfg)
	if err := config.Save(path, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote starter config to %s\n", path)
	fmt.Println("Edit the storage paths and embedding provider, then start the server:")
	fmt.Printf("  sahayak server --config %s\n", path)
}

// apiPost posts body as JSON and decodes a 2xx response into out.
func apiPost(endpoint string, body, out interface{}) error {
	return apiPostExpect(endpoint, body, out, 0)
}

// apiPostExpect is apiPost with an exact expected status; 0 accepts any 2xx.
func apiPostExpect(endpoint string, body, out interface{}, want int) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	resp, err := http.Post(endpoint, "application/json", reader)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if want != 0 {
		ok = resp.StatusCode == want
	}
	if !ok {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiGet(endpoint string, out interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Store    storage.Storage
	Embedder embedding.Embedder
	Index    *vector.MemoryIndex
	Importer *ingest.Importer
	Queue    *ingest.Queue
	Runner   *embedjob.Runner
	Search   *search.Service
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	index, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := index.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	if index.Size() == 0 {
		if err := rebuildIndex(context.Background(), store, index, logger); err != nil {
			logger.Warn("vector index rebuild from storage failed", zap.Error(err))
		}
	}
	logger.Info("vector index ready",
		zap.Int("vectors", index.Size()),
		zap.Int("dimensions", cfg.Embedding.Dimensions))

	importer := ingest.NewImporter(store, index, cfg.Ingest.BatchSize, logger)
	runner := embedjob.NewRunner(store, embedder, index, embedjob.Config{
		BatchSize:     cfg.Job.BatchSize,
		DelayMS:       cfg.Job.DelayMS,
		RetryAttempts: cfg.Job.RetryAttempts,
		Workers:       cfg.Job.Workers,
		Priority:      cfg.Job.Priority,
		SkipExisting:  cfg.Job.SkipExistingOrDefault(),
	}, logger)
	queue := ingest.NewQueue(importer, runner, logger)
	searchSvc := search.NewService(store, embedder, index, cfg.Search, logger)

	return &Components{
		Store:    store,
		Embedder: embedder,
		Index:    index,
		Importer: importer,
		Queue:    queue,
		Runner:   runner,
		Search:   searchSvc,
	}, nil
}

// buildEmbedder picks the embedding backend from config. An ONNX model that
// fails to load falls back to the mock backend so the rest of the system
// stays usable; a misconfigured remote backend is an error.
func buildEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "onnx", "":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
		)
		if err != nil {
			logger.Warn("onnx embedder unavailable, using mock backend",
				zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = onnxEmbedder
		}
	case "remote":
		remote, err := embedding.NewRemoteEmbedder(embedding.RemoteConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey(),
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote embedder: %w", err)
		}
		embedder = remote
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.NewCached(embedder, cfg.Embedding.CacheSize), nil
}

// rebuildIndex fills an empty vector index from the embeddings already in
// storage, so a deleted or stale snapshot file does not force a re-embed.
func rebuildIndex(ctx context.Context, store storage.Storage, index *vector.MemoryIndex, logger *zap.Logger) error {
	const flushEvery = 500
	ids := make([]string, 0, flushEvery)
	vecs := make([][]float32, 0, flushEvery)
	flush := func() {
		if len(ids) == 0 {
			return
		}
		if err := index.Add(ctx, ids, vecs); err != nil {
			logger.Warn("skipping stored embeddings with wrong dimensions",
				zap.Int("count", len(ids)), zap.Error(err))
		}
		ids = ids[:0]
		vecs = vecs[:0]
	}
	err := store.EachEmbedding(ctx, func(id string, emb []float32) error {
		ids = append(ids, id)
		vecs = append(vecs, emb)
		if len(ids) >= flushEvery {
			flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	flush()
	return nil
}

func printUsage() {
	fmt.Println(`sahayak - agricultural advisory records with semantic search

Usage:
  sahayak server [flags]            Start the HTTP server
  sahayak ingest [flags] <file>     Import a CSV/XLSX export directly
  sahayak search [flags] <query>    Search advisory records
  sahayak status [flags]            Show corpus and job status
  sahayak latest [flags]            List the most recently ingested records
  sahayak embed <action> [flags]    Control the embedding job on a running server
  sahayak watch <add|remove|list>   Manage watched spool directories
  sahayak config init [flags]       Write a starter config file
  sahayak version                   Show version
  sahayak help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/sahayak/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --clear            Clear existing records before import
  --embed            Run the embedding job after import (default: true)
  --batch-size int   Insert batch size (0 = config default)

Search Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --top-k int        Number of results (default: 10)
  --exact            Use the exact cosine scan instead of the vector index
  --state, --district, --category, --crop, --query-type string
                     Case-insensitive substring filters
  --year, --month int
                     Date filters
  --regex string     Regular expression filter on the query text
  --output string    Output format: text, compact, or json (default: text)

Embed Actions (against a running server):
  start [--batch-size N] [--delay-ms N] [--retry N] [--workers N] [--skip-existing true|false]
  pause | resume | stop | reset | status | logs [--limit N] [--level info|warn|error]

Config Init Flags:
  --output string    Where to write the starter config (default: config.yaml)
  --force            Overwrite an existing file

Examples:
  sahayak server
  sahayak config init
  sahayak ingest --clear questions-2024.csv
  sahayak search paddy leaf spots
  sahayak search --state punjab --crop paddy "blast treatment"
  sahayak embed start --batch-size 50 --delay-ms 0
  sahayak embed status
  sahayak status --output json
  sahayak latest --state punjab --limit 50
  sahayak watch add /var/spool/sahayak`)
}
