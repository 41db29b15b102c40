package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/config"
	"github.com/agridesk/sahayak/internal/embedding"
	"github.com/agridesk/sahayak/internal/embedjob"
	"github.com/agridesk/sahayak/internal/ingest"
	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/search"
	"github.com/agridesk/sahayak/internal/server"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
)

const e2eDimensions = 8

func e2eSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		OverscanFactor: 20,
		OverscanFloor:  200,
		ExactScanCap:   10000,
	}
}

func waitForTerminal(t *testing.T, runner *embedjob.Runner) embedjob.Status {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		st := runner.Status()
		if st.Phase.Terminal() {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("embedding run did not finish: %+v", runner.Status())
	return embedjob.Status{}
}

// Inserts the corpus, embeds it with the job runner, and checks that each
// query test case resolves to its record at the top rank.
func TestE2E_SearchReturnsExpectedRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewMockEmbedder(e2eDimensions)
	defer embedder.Close()

	index, err := vector.NewMemoryIndex(e2eDimensions)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	corpus := BuildCorpus()
	if corpus.TotalRecords == 0 {
		t.Fatal("corpus has no records")
	}
	if corpus.TotalQueries == 0 {
		t.Fatal("corpus has no query test cases")
	}

	ctx := context.Background()
	inserted, failed, err := store.InsertRecords(ctx, corpus.Records)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != corpus.TotalRecords || failed != 0 {
		t.Fatalf("inserted %d records (%d failed), want %d", inserted, failed, corpus.TotalRecords)
	}

	runner := embedjob.NewRunner(store, embedder, index, embedjob.Config{
		BatchSize:    25,
		Workers:      2,
		SkipExisting: true,
	}, nil)
	if err := runner.Start(ctx); err != nil {
		t.Fatal(err)
	}
	final := waitForTerminal(t, runner)
	if final.Phase != embedjob.PhaseCompleted {
		t.Fatalf("run ended in phase %s (last error: %s)", final.Phase, final.LastError)
	}
	if final.Succeeded != int64(corpus.TotalRecords) {
		t.Fatalf("embedded %d records, want %d", final.Succeeded, corpus.TotalRecords)
	}
	if index.Size() != corpus.TotalRecords {
		t.Fatalf("index holds %d vectors, want %d", index.Size(), corpus.TotalRecords)
	}

	svc := search.NewService(store, embedder, index, e2eSearchConfig(), nil)
	t.Logf("embedded %d records; running %d query test cases", corpus.TotalRecords, corpus.TotalQueries)

	for _, tc := range corpus.TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			resp, err := svc.Search(ctx, &models.SearchQuery{Query: tc.Query, TopK: 5})
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if resp.Mode != models.SearchModeIndex {
				t.Errorf("mode = %s, want %s", resp.Mode, models.SearchModeIndex)
			}
			if len(resp.Results) == 0 {
				t.Fatal("no results")
			}
			top := resp.Results[0]
			if !containsID(tc.ExpectedRecordIDs, top.Record.ID) {
				t.Errorf("top result = %s (score %.4f), want one of %v",
					top.Record.ID, top.Score, tc.ExpectedRecordIDs)
			}
			if top.Score < 0.999 {
				t.Errorf("top score = %.6f, want ~1.0 for the record's own text", top.Score)
			}
		})
	}

	t.Run("exact scan agrees with the index path", func(t *testing.T) {
		tc := corpus.TestCases[0]
		viaIndex, err := svc.Search(ctx, &models.SearchQuery{Query: tc.Query, TopK: 3})
		if err != nil {
			t.Fatal(err)
		}
		viaScan, err := svc.SearchExact(ctx, &models.SearchQuery{Query: tc.Query, TopK: 3})
		if err != nil {
			t.Fatal(err)
		}
		if viaScan.Mode != models.SearchModeExact {
			t.Errorf("fallback mode = %s, want %s", viaScan.Mode, models.SearchModeExact)
		}
		if len(viaIndex.Results) == 0 || len(viaScan.Results) == 0 {
			t.Fatal("empty results from one of the paths")
		}
		if viaIndex.Results[0].Record.ID != viaScan.Results[0].Record.ID {
			t.Errorf("paths disagree: index %s vs scan %s",
				viaIndex.Results[0].Record.ID, viaScan.Results[0].Record.ID)
		}
	})

	t.Run("state filter keeps the target record", func(t *testing.T) {
		rec := corpus.Records[0]
		resp, err := svc.Search(ctx, &models.SearchQuery{
			Query:   rec.EmbeddingText(),
			TopK:    5,
			Filters: models.Filter{State: "punjab"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) == 0 || resp.Results[0].Record.ID != rec.ID {
			t.Errorf("expected %s at top with matching state filter, got %+v", rec.ID, resp.Results)
		}
	})

	t.Run("non-matching state filter excludes everything", func(t *testing.T) {
		rec := corpus.Records[0]
		resp, err := svc.Search(ctx, &models.SearchQuery{
			Query:   rec.EmbeddingText(),
			TopK:    5,
			Filters: models.Filter{State: "Kerala"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Count != 0 {
			t.Errorf("expected no results for a state absent from the corpus, got %d", resp.Count)
		}
	})

	t.Run("year and month filters keep the target record", func(t *testing.T) {
		rec := corpus.Records[0]
		resp, err := svc.Search(ctx, &models.SearchQuery{
			Query:   rec.EmbeddingText(),
			TopK:    5,
			Filters: models.Filter{Year: rec.Year, Month: rec.Month},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) == 0 || resp.Results[0].Record.ID != rec.ID {
			t.Errorf("expected %s at top with date filters, got %d results", rec.ID, len(resp.Results))
		}
	})
}

// Uploads the corpus as a CSV export over HTTP, drives the embedding job
// through the API, and searches through the API.
func TestE2E_UploadEmbedSearchOverHTTP(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 0},
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db.sqlite"),
			VectorIndexPath: filepath.Join(dir, "vectors.bin"),
			UploadDir:       filepath.Join(dir, "uploads"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: e2eDimensions, CacheSize: 100},
		Job:       config.JobConfig{BatchSize: 25, Workers: 2},
		Ingest:    config.IngestConfig{BatchSize: 100},
		Search:    e2eSearchConfig(),
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	embedder := embedding.NewMockEmbedder(e2eDimensions)
	defer embedder.Close()
	index, err := vector.NewMemoryIndex(e2eDimensions)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	importer := ingest.NewImporter(store, index, cfg.Ingest.BatchSize, nil)
	runner := embedjob.NewRunner(store, embedder, index, embedjob.Config{
		BatchSize:    25,
		Workers:      2,
		SkipExisting: true,
	}, nil)
	queue := ingest.NewQueue(importer, runner, nil)
	svc := search.NewService(store, embedder, index, cfg.Search, nil)

	srv := server.New(server.Deps{
		Store:    store,
		Search:   svc,
		Importer: importer,
		Queue:    queue,
		Runner:   runner,
		Index:    index,
		Config:   cfg,
		Logger:   zap.NewNop(),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	corpus := BuildCorpus()
	exportBytes, err := WriteExportFile(".csv", corpus.Records)
	if err != nil {
		t.Fatal(err)
	}

	// Foreground upload so the response carries the import result. Embedding
	// generation stays off so the test drives the job through the API itself.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("process_in_background", "false"); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("generate_embeddings", "false"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "advisories-2024.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(exportBytes); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(ts.URL+"/api/v1/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var upload struct {
		Status string               `json:"status"`
		Result *models.ImportResult `json:"result"`
	}
	decodeBody(t, resp, http.StatusOK, &upload)
	if upload.Status != "completed" {
		t.Fatalf("upload status = %q, want completed", upload.Status)
	}
	if upload.Result == nil || upload.Result.Inserted != corpus.TotalRecords {
		t.Fatalf("upload result = %+v, want %d inserted", upload.Result, corpus.TotalRecords)
	}

	// Drive the embedding job through the API.
	resp, err = http.Post(ts.URL+"/api/v1/embeddings/start", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	var started embedjob.Status
	decodeBody(t, resp, http.StatusAccepted, &started)
	if started.Total != int64(corpus.TotalRecords) {
		t.Fatalf("run snapshot total = %d, want %d", started.Total, corpus.TotalRecords)
	}

	final := pollEmbeddingsDone(t, ts.URL)
	if final.Phase != embedjob.PhaseCompleted {
		t.Fatalf("run ended in phase %s (last error: %s)", final.Phase, final.LastError)
	}
	if final.Succeeded != int64(corpus.TotalRecords) {
		t.Errorf("embedded %d records, want %d", final.Succeeded, corpus.TotalRecords)
	}

	// Uploaded rows get fresh IDs, so queries resolve by query text.
	n := 5
	if len(corpus.TestCases) < n {
		n = len(corpus.TestCases)
	}
	for _, tc := range corpus.TestCases[:n] {
		t.Run(tc.Description, func(t *testing.T) {
			want := corpus.RecordByID(tc.ExpectedRecordIDs[0])
			payload, err := json.Marshal(map[string]interface{}{"query": tc.Query, "top_k": 3})
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.Post(ts.URL+"/api/v1/search", "application/json", bytes.NewReader(payload))
			if err != nil {
				t.Fatal(err)
			}
			var out models.SearchResponse
			decodeBody(t, resp, http.StatusOK, &out)
			if out.Count == 0 {
				t.Fatal("no results")
			}
			if got := out.Results[0].Record.QueryText; got != want.QueryText {
				t.Errorf("top result query = %q, want %q", got, want.QueryText)
			}
		})
	}

	// The fallback endpoint agrees on the top record.
	tc := corpus.TestCases[0]
	want := corpus.RecordByID(tc.ExpectedRecordIDs[0])
	payload, err := json.Marshal(map[string]interface{}{"query": tc.Query, "top_k": 3})
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.Post(ts.URL+"/api/v1/search/fallback", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	var fallback models.SearchResponse
	decodeBody(t, resp, http.StatusOK, &fallback)
	if fallback.Mode != models.SearchModeExact {
		t.Errorf("fallback mode = %s, want %s", fallback.Mode, models.SearchModeExact)
	}
	if fallback.Count == 0 || fallback.Results[0].Record.QueryText != want.QueryText {
		t.Errorf("fallback top result does not match %q", want.QueryText)
	}

	// Corpus counters end up on the status endpoint.
	resp, err = http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	var status struct {
		TotalRecords    int64 `json:"total_records"`
		EmbeddedRecords int64 `json:"embedded_records"`
		VectorIndexSize int   `json:"vector_index_size"`
	}
	decodeBody(t, resp, http.StatusOK, &status)
	if status.TotalRecords != int64(corpus.TotalRecords) || status.EmbeddedRecords != int64(corpus.TotalRecords) {
		t.Errorf("status counts = %d/%d, want %d/%d",
			status.TotalRecords, status.EmbeddedRecords, corpus.TotalRecords, corpus.TotalRecords)
	}
	if status.VectorIndexSize != corpus.TotalRecords {
		t.Errorf("vector index size = %d, want %d", status.VectorIndexSize, corpus.TotalRecords)
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func decodeBody(t *testing.T, resp *http.Response, wantStatus int, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, wantStatus, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func pollEmbeddingsDone(t *testing.T, baseURL string) embedjob.Status {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/v1/embeddings/status")
		if err != nil {
			t.Fatal(err)
		}
		var st embedjob.Status
		decodeBody(t, resp, http.StatusOK, &st)
		if st.Phase.Terminal() {
			return st
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("embedding job did not finish")
	return embedjob.Status{}
}
