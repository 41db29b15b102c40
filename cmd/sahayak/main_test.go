package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agridesk/sahayak/internal/embedding"
	"github.com/agridesk/sahayak/internal/models"
	"github.com/agridesk/sahayak/internal/storage"
	"github.com/agridesk/sahayak/internal/vector"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"paddy leaf spots", "-top-k", "5"},
			expected: []string{"-top-k", "5", "paddy leaf spots"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "5", "paddy leaf spots"},
			expected: []string{"-top-k", "5", "paddy leaf spots"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"paddy leaf spots"},
			expected: []string{"paddy leaf spots"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"wheat", "rust", "-state", "punjab"},
			expected: []string{"-state", "punjab", "wheat", "rust"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQueryText(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"paddy"}, "paddy"},
		{"multiple words", []string{"paddy", "blast"}, "paddy blast"},
		{"single quoted phrase", []string{"paddy blast"}, "paddy blast"},
		{"three words", []string{"wheat", "market", "price"}, "wheat market price"},
		{"ragged spacing collapsed", []string{"paddy", " blast  disease"}, "paddy blast disease"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
		{"one space", []string{" "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQueryText(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQueryText(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir()
	// is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestRebuildIndex_MatchesDirectBuild(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	mock := embedding.NewMockEmbedder(4)
	direct, err := vector.NewMemoryIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		rec := &models.Record{
			ID:         fmt.Sprintf("rec-%03d", i),
			State:      "Punjab",
			Category:   "Plant Protection",
			QueryType:  "97",
			QueryText:  fmt.Sprintf("whitefly on cotton field %d", i),
			AnswerText: "spray recommendation",
			CreatedOn:  time.Now(),
		}
		if _, _, err := store.InsertRecords(ctx, []*models.Record{rec}); err != nil {
			t.Fatal(err)
		}
		emb, err := mock.Embed(ctx, rec.EmbeddingText())
		if err != nil {
			t.Fatal(err)
		}
		if err := store.UpdateEmbedding(ctx, rec.ID, emb); err != nil {
			t.Fatal(err)
		}
		if err := direct.Add(ctx, []string{rec.ID}, [][]float32{emb}); err != nil {
			t.Fatal(err)
		}
	}
	// A record without a vector must stay out of the rebuilt index.
	plain := &models.Record{ID: "rec-plain", State: "Punjab", QueryText: "no vector yet", CreatedOn: time.Now()}
	if _, _, err := store.InsertRecords(ctx, []*models.Record{plain}); err != nil {
		t.Fatal(err)
	}

	rebuilt, err := vector.NewMemoryIndex(4)
	if err != nil {
		t.Fatal(err)
	}
	if err := rebuildIndex(ctx, store, rebuilt, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	if rebuilt.Size() != direct.Size() {
		t.Fatalf("rebuilt size = %d, direct size = %d", rebuilt.Size(), direct.Size())
	}

	query, err := mock.Embed(ctx, "whitefly on cotton field 3")
	if err != nil {
		t.Fatal(err)
	}
	want, err := direct.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := rebuilt.Search(ctx, query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("hits: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("hit %d: got %s, want %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}
