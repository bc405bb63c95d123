package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/chatkeeper/internal/flagx"
	"github.com/dmitrijs2005/chatkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the DTO used for config file unmarshalling. Durations use
// timex.Duration so a file may give "90s" or integer nanoseconds. Pointer
// fields distinguish "absent" from an explicit zero or false.
type FileConfig struct {
	EndpointAddrGRPC   string          `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	OpsAddr            string          `json:"ops_addr" yaml:"ops_addr"`
	DatabaseDSN        string          `json:"database_dsn" yaml:"database_dsn"`
	DataDir            string          `json:"data_dir" yaml:"data_dir"`
	FlushInterval      *timex.Duration `json:"flush_interval" yaml:"flush_interval"`
	S3RootUser         string          `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword     string          `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket           string          `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region           string          `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint     string          `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	ArchiveFolder      string          `json:"archive_folder" yaml:"archive_folder"`
	ArchiveDir         string          `json:"archive_dir" yaml:"archive_dir"`
	BackupPrefix       string          `json:"backup_prefix" yaml:"backup_prefix"`
	BackupCompression  *bool           `json:"backup_compression" yaml:"backup_compression"`
	ActivityThreshold  *timex.Duration `json:"activity_threshold" yaml:"activity_threshold"`
	BackupInterval     *timex.Duration `json:"backup_interval" yaml:"backup_interval"`
	MinBackupGap       *timex.Duration `json:"min_backup_gap" yaml:"min_backup_gap"`
	MaxHourlySnapshots *int            `json:"max_hourly_snapshots" yaml:"max_hourly_snapshots"`
	MaxDailySnapshots  *int            `json:"max_daily_snapshots" yaml:"max_daily_snapshots"`
	ShutdownTimeout    *timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string          `json:"log_level" yaml:"log_level"`
}

// parseFile overlays Config with values from the file named by -c/-config.
// Files ending in .yaml or .yml are decoded as YAML, everything else as
// JSON. Only fields present in the file are copied. Read or decode errors
// panic.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlag(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&cfg.OpsAddr, fc.OpsAddr)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.S3RootUser, fc.S3RootUser)
	setString(&cfg.S3RootPassword, fc.S3RootPassword)
	setString(&cfg.S3Bucket, fc.S3Bucket)
	setString(&cfg.S3Region, fc.S3Region)
	setString(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&cfg.ArchiveFolder, fc.ArchiveFolder)
	setString(&cfg.ArchiveDir, fc.ArchiveDir)
	setString(&cfg.BackupPrefix, fc.BackupPrefix)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.FlushInterval != nil {
		cfg.FlushInterval = fc.FlushInterval.Duration
	}
	if fc.BackupCompression != nil {
		cfg.BackupCompression = *fc.BackupCompression
	}
	if fc.ActivityThreshold != nil {
		cfg.ActivityThreshold = fc.ActivityThreshold.Duration
	}
	if fc.BackupInterval != nil {
		cfg.BackupInterval = fc.BackupInterval.Duration
	}
	if fc.MinBackupGap != nil {
		cfg.MinBackupGap = fc.MinBackupGap.Duration
	}
	if fc.MaxHourlySnapshots != nil {
		cfg.MaxHourlySnapshots = *fc.MaxHourlySnapshots
	}
	if fc.MaxDailySnapshots != nil {
		cfg.MaxDailySnapshots = *fc.MaxDailySnapshots
	}
	if fc.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = fc.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
