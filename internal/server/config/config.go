// Package config handles configuration for the server component,
// including defaults, a JSON or YAML file overlay, environment variables
// and command-line flags.
package config

import "time"

// Config holds runtime settings for the chatkeeper server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the public gRPC endpoint.
//   - OpsAddr: bind address for the ops HTTP endpoint (/metrics, /healthz).
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the embedded store.
//   - DataDir / FlushInterval: embedded store location and safety-net flush period.
//   - S3*: object storage settings. An empty S3Bucket disables the S3 archive.
//   - ArchiveDir: local directory archive, used when no bucket is configured.
//   - Backup* / MinBackupGap / Max*Snapshots: scheduler and retention policy.
type Config struct {
	EndpointAddrGRPC   string
	OpsAddr            string
	DatabaseDSN        string
	DataDir            string
	FlushInterval      time.Duration
	S3RootUser         string
	S3RootPassword     string
	S3Bucket           string
	S3Region           string
	S3BaseEndpoint     string
	ArchiveFolder      string
	ArchiveDir         string
	BackupPrefix       string
	BackupCompression  bool
	ActivityThreshold  time.Duration
	BackupInterval     time.Duration
	MinBackupGap       time.Duration
	MaxHourlySnapshots int
	MaxDailySnapshots  int
	ShutdownTimeout    time.Duration
	LogLevel           string
}

// LoadDefaults populates Config with development defaults: embedded
// storage under ./data and no remote archive.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.OpsAddr = ":9090"
	c.DatabaseDSN = ""
	c.DataDir = "data"
	c.FlushInterval = 5 * time.Minute
	c.S3Region = "us-east-1"
	c.ArchiveFolder = "chat-backups"
	c.BackupPrefix = "chat-backup"
	c.ActivityThreshold = 30 * time.Minute
	c.BackupInterval = 60 * time.Minute
	c.MinBackupGap = 55 * time.Minute
	c.MaxHourlySnapshots = 24
	c.MaxDailySnapshots = 7
	c.ShutdownTimeout = 30 * time.Second
	c.LogLevel = "info"
}

// ArchiveConfigured reports whether any remote archive destination is set.
func (c *Config) ArchiveConfigured() bool {
	return c.S3Bucket != "" || c.ArchiveDir != ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file, the environment and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
