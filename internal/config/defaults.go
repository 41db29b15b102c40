package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/sahayak/data/db/records.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/sahayak/data/indices/vectors.idx"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/sahayak/data/uploads"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/sahayak/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 100
	}
	if cfg.Job.BatchSize == 0 {
		cfg.Job.BatchSize = 10
	}
	if cfg.Job.DelayMS == 0 {
		cfg.Job.DelayMS = 1000
	}
	if cfg.Job.RetryAttempts == 0 {
		cfg.Job.RetryAttempts = 3
	}
	if cfg.Job.Workers == 0 {
		cfg.Job.Workers = 1
	}
	if cfg.Job.Priority == "" {
		cfg.Job.Priority = "normal"
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 100
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.OverscanFactor == 0 {
		cfg.Search.OverscanFactor = 20
	}
	if cfg.Search.OverscanFloor == 0 {
		cfg.Search.OverscanFloor = 200
	}
	if cfg.Search.ExactScanCap == 0 {
		cfg.Search.ExactScanCap = 10000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".csv", ".xlsx"}
	}
}
