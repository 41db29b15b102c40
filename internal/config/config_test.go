package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./data/db/records.db"
  vector_index_path: "./data/indices/vectors.idx"
watch:
  directories: ["./spool"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "records.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantIdx := filepath.Join(dir, "data", "indices", "vectors.idx")
	if cfg.Storage.VectorIndexPath != wantIdx {
		t.Errorf("vector_index_path = %s, want %s", cfg.Storage.VectorIndexPath, wantIdx)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "spool")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "onnx" {
		t.Errorf("default provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.CacheSize != 100 {
		t.Errorf("default cache_size: got %d", cfg.Embedding.CacheSize)
	}
	if cfg.Job.BatchSize != 10 || cfg.Job.DelayMS != 1000 {
		t.Errorf("default job pacing: got batch=%d delay=%d", cfg.Job.BatchSize, cfg.Job.DelayMS)
	}
	if cfg.Job.RetryAttempts != 3 || cfg.Job.Workers != 1 {
		t.Errorf("default job retry/workers: got retry=%d workers=%d", cfg.Job.RetryAttempts, cfg.Job.Workers)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.MaxLimit != 100 {
		t.Errorf("default search limits: got %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Search.OverscanFactor != 20 || cfg.Search.OverscanFloor != 200 {
		t.Errorf("default overscan: got factor=%d floor=%d", cfg.Search.OverscanFactor, cfg.Search.OverscanFloor)
	}
	if cfg.Search.ExactScanCap != 10000 {
		t.Errorf("default exact_scan_cap: got %d", cfg.Search.ExactScanCap)
	}
	if cfg.Watch.Extensions == nil {
		t.Error("watch extensions should be set by default")
	}
	if len(cfg.Watch.Extensions) != 2 || cfg.Watch.Extensions[0] != ".csv" || cfg.Watch.Extensions[1] != ".xlsx" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestJobConfig_SkipExistingOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		j := &JobConfig{}
		if got := j.SkipExistingOrDefault(); !got {
			t.Errorf("SkipExistingOrDefault() = %v, want true", got)
		}
	})
	t.Run("true_returns_true", func(t *testing.T) {
		v := true
		j := &JobConfig{SkipExisting: &v}
		if got := j.SkipExistingOrDefault(); !got {
			t.Errorf("SkipExistingOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		j := &JobConfig{SkipExisting: &f}
		if got := j.SkipExistingOrDefault(); got {
			t.Errorf("SkipExistingOrDefault() = %v, want false", got)
		}
	})
}

func TestEmbeddingConfig_APIKey(t *testing.T) {
	t.Setenv("SAHAYAK_TEST_API_KEY", "sk-test")
	e := &EmbeddingConfig{APIKeyEnv: "SAHAYAK_TEST_API_KEY"}
	if got := e.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q, want sk-test", got)
	}
	empty := &EmbeddingConfig{}
	if got := empty.APIKey(); got != "" {
		t.Errorf("APIKey() with no env name = %q, want empty", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
