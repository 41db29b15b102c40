package embedjob

// Config controls how a generation run paces itself. Values outside the
// allowed ranges are clamped, never rejected.
type Config struct {
	BatchSize     int    `json:"batch_size"`
	DelayMS       int    `json:"delay_ms"`
	RetryAttempts int    `json:"retry_attempts"`
	Workers       int    `json:"workers"`
	Priority      string `json:"priority"`
	SkipExisting  bool   `json:"skip_existing"`
}

// DefaultConfig returns the stock pacing: small batches, a second between
// them, three retries, one worker, and existing embeddings left alone.
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		DelayMS:       1000,
		RetryAttempts: 3,
		Workers:       1,
		Priority:      "normal",
		SkipExisting:  true,
	}
}

// Clamp returns a copy with every field forced into its allowed range:
// batch size 1..1000, delay >= 0, retries 0..10, workers 1..5.
func (c Config) Clamp() Config {
	c.BatchSize = clampInt(c.BatchSize, 1, 1000)
	if c.DelayMS < 0 {
		c.DelayMS = 0
	}
	c.RetryAttempts = clampInt(c.RetryAttempts, 0, 10)
	c.Workers = clampInt(c.Workers, 1, 5)
	if c.Priority == "" {
		c.Priority = "normal"
	}
	return c
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
