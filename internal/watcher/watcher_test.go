package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agridesk/sahayak/internal/models"
)

type spoolCall struct {
	path string
	name string
	opts models.IngestOptions
}

// spoolStub records Enqueue calls in place of the real ingestion queue.
type spoolStub struct {
	mu    sync.Mutex
	calls []spoolCall
	next  int64
}

func (s *spoolStub) Enqueue(path, displayName string, opts models.IngestOptions) *models.IngestTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.calls = append(s.calls, spoolCall{path: path, name: displayName, opts: opts})
	return &models.IngestTask{ID: s.next, Filename: displayName, Path: path, Status: models.TaskQueued}
}

func (s *spoolStub) snapshot() []spoolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spoolCall(nil), s.calls...)
}

func waitCalls(t *testing.T, stub *spoolStub, want int) []spoolCall {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if calls := stub.snapshot(); len(calls) >= want {
			return calls
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d enqueued files, got %v", want, stub.snapshot())
	return nil
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

func TestWatcher_EnqueuesSpooledFile(t *testing.T) {
	dir := t.TempDir()
	stub := &spoolStub{}
	opts := models.IngestOptions{GenerateEmbeddings: true}
	w := New(stub, []string{dir}, []string{".csv", ".xlsx"}, opts, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "march-export.csv"), csvContent); err != nil {
		t.Fatal(err)
	}
	calls := waitCalls(t, stub, 1)
	if calls[0].name != "march-export.csv" {
		t.Errorf("display name = %q", calls[0].name)
	}
	if !calls[0].opts.GenerateEmbeddings {
		t.Error("ingest options not propagated")
	}

	// A non-matching extension never reaches the queue.
	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if calls := stub.snapshot(); len(calls) != 1 {
		t.Errorf("after txt write: %v", calls)
	}
}

const csvContent = "StateName,QueryText\nPunjab,leaf spots\n"

func TestWatcher_DebounceCollapsesWrites(t *testing.T) {
	dir := t.TempDir()
	stub := &spoolStub{}
	w := New(stub, []string{dir}, []string{".csv"}, models.IngestOptions{}, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "big-export.csv")
	for i := 0; i < 3; i++ {
		if err := writeFile(path, strings.Repeat("row\n", i+1)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	waitCalls(t, stub, 1)
	time.Sleep(300 * time.Millisecond)
	if calls := stub.snapshot(); len(calls) != 1 {
		t.Errorf("a copied-in file should be enqueued once, got %d calls", len(calls))
	}
}

func TestWatcher_RemoveCancelsPending(t *testing.T) {
	dir := t.TempDir()
	stub := &spoolStub{}
	w := New(stub, []string{dir}, []string{".csv"}, models.IngestOptions{}, WithDebounce(150*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "gone.csv")
	if err := writeFile(path, csvContent); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if calls := stub.snapshot(); len(calls) != 0 {
		t.Errorf("removed file should not be enqueued: %v", calls)
	}
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	stub := &spoolStub{}
	w := New(stub, nil, []string{".csv"}, models.IngestOptions{}, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}

	// Adding the same root again is a no-op.
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 1 {
		t.Errorf("duplicate add: %v", w.Directories())
	}

	if err := writeFile(filepath.Join(dir, "in.csv"), csvContent); err != nil {
		t.Fatal(err)
	}
	waitCalls(t, stub, 1)

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
	if err := writeFile(filepath.Join(dir, "late.csv"), csvContent); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if calls := stub.snapshot(); len(calls) != 1 {
		t.Errorf("file in removed root should not be enqueued: %v", calls)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.csv"), csvContent); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "b.xlsx"), "fake"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.log"), "x"); err != nil {
		t.Fatal(err)
	}

	stub := &spoolStub{}
	w := New(stub, []string{dir}, []string{".csv", ".xlsx"}, models.IngestOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExistingFiles()

	calls := stub.snapshot()
	if len(calls) != 2 {
		t.Fatalf("sync enqueued %d files: %v", len(calls), calls)
	}
	for _, c := range calls {
		if strings.HasSuffix(c.path, ".log") {
			t.Errorf("log file enqueued: %v", c)
		}
	}
}

func TestWatcher_AddDirectorySyncsExisting(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "old.csv"), csvContent); err != nil {
		t.Fatal(err)
	}

	stub := &spoolStub{}
	w := New(stub, nil, []string{".csv"}, models.IngestOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, true); err != nil {
		t.Fatal(err)
	}
	calls := waitCalls(t, stub, 1)
	if !strings.HasSuffix(calls[0].path, "old.csv") {
		t.Errorf("synced path = %q", calls[0].path)
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "spool", "incoming")

	w := New(&spoolStub{}, []string{root}, []string{".csv"}, models.IngestOptions{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	stub := &spoolStub{}
	w := New(stub, []string{dir}, []string{".csv", ".xlsx"}, models.IngestOptions{}, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Simulate a folder of exports copied into the spool.
	nested := filepath.Join(dir, "2024", "march")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := writeFile(filepath.Join(nested, "deep.csv"), csvContent); err != nil {
		t.Fatal(err)
	}

	calls := waitCalls(t, stub, 1)
	found := false
	for _, c := range calls {
		if strings.HasSuffix(c.path, "deep.csv") {
			found = true
		}
		if strings.HasSuffix(c.path, ".log") || strings.HasSuffix(c.path, ".txt") {
			t.Errorf("unexpected enqueue: %v", c)
		}
	}
	if !found {
		t.Errorf("deep.csv never enqueued: %v", calls)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/spool/export.csv", []string{".csv"}, true},
		{"/spool/export.CSV", []string{".csv"}, true},
		{"/spool/export.csv", []string{"csv", "xlsx"}, true},
		{"/spool/export.md", []string{".csv"}, false},
		{"/spool/export", nil, true},
		{"/spool/export", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.csv", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
