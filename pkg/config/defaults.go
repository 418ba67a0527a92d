package config

import (
	"strings"
	"time"
)

// DefaultConfig returns a Config populated entirely with defaults: a
// single-process, memory-backed, metrics/telemetry-disabled setup that
// runs with no external dependencies.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field of cfg with its default.
// Explicit values (from file, env, or flags) are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applyDocumentDefaults(&cfg.Document)
	applyBroadcastDefaults(&cfg.Broadcast)
	applyStorageDefaults(&cfg.Storage)
	applyAuthDefaults(&cfg.Auth)
	applyShardingDefaults(&cfg.Sharding)
}

func applyLoggingDefaults(c *LoggingConfig) {
	if c.Level == "" {
		c.Level = "INFO"
	}
	c.Level = strings.ToUpper(c.Level)
	if c.Format == "" {
		c.Format = "json"
	}
}

func applyTelemetryDefaults(c *TelemetryConfig) {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.ServiceName == "" {
		c.ServiceName = "mimicd"
	}
}

func applyMetricsDefaults(c *MetricsConfig) {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9090"
	}
}

func applyServerDefaults(c *ServerConfig) {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.BasePath == "" {
		c.BasePath = "/mimic"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}

func applyDocumentDefaults(c *DocumentConfig) {
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 5 * time.Minute
	}
	if c.MaxTransactionHistory <= 0 {
		c.MaxTransactionHistory = 1000
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 5 * time.Minute
	}
	if c.SnapshotTransactionThreshold <= 0 {
		c.SnapshotTransactionThreshold = 100
	}
	if c.StorageCallTimeout <= 0 {
		c.StorageCallTimeout = 5 * time.Second
	}
	if c.GCInterval <= 0 {
		c.GCInterval = time.Minute
	}
}

func applyBroadcastDefaults(c *BroadcastConfig) {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.OverflowPolicy == "" {
		c.OverflowPolicy = "dropOldest"
	}
}

func applyStorageDefaults(c *StorageConfig) {
	if c.ColdStorage.Driver == "" {
		c.ColdStorage.Driver = "memory"
	}
	if c.HotStorage.Driver == "" {
		c.HotStorage.Driver = "memory"
	}
	if c.HotStorage.Driver == "badger" && c.HotStorage.Dir == "" {
		c.HotStorage.Dir = "./data/wal"
	}
}

func applyAuthDefaults(c *AuthConfig) {
	if c.Driver == "" {
		c.Driver = "static"
	}
}

func applyShardingDefaults(c *ShardingConfig) {
	if c.VirtualNodes <= 0 {
		c.VirtualNodes = 150
	}
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = 4096
	}
}
