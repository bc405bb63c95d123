package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envFile is the optional dotenv file loaded before the process
// environment is read. Variables already set in the process win.
var envFile = ".env"

// parseEnv overlays Config with environment variables, after loading
// envFile if it exists. Malformed numbers panic.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString(&cfg.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&cfg.OpsAddr, "OPS_ADDR")
	envString(&cfg.DatabaseDSN, "DATABASE_URL")
	envString(&cfg.DataDir, "DATA_DIR")
	envMinutes(&cfg.FlushInterval, "FLUSH_INTERVAL_MINUTES")
	envString(&cfg.S3RootUser, "S3_ACCESS_KEY")
	envString(&cfg.S3RootPassword, "S3_SECRET_KEY")
	envString(&cfg.S3Bucket, "S3_BUCKET")
	envString(&cfg.S3Region, "S3_REGION")
	envString(&cfg.S3BaseEndpoint, "S3_ENDPOINT")
	envString(&cfg.ArchiveFolder, "ARCHIVE_FOLDER")
	envString(&cfg.ArchiveDir, "ARCHIVE_DIR")
	envString(&cfg.BackupPrefix, "BACKUP_PREFIX")
	envBool(&cfg.BackupCompression, "BACKUP_COMPRESSION")
	envMinutes(&cfg.ActivityThreshold, "ACTIVITY_THRESHOLD_MINUTES")
	envMinutes(&cfg.BackupInterval, "BACKUP_INTERVAL_MINUTES")
	envMinutes(&cfg.MinBackupGap, "MIN_BACKUP_GAP_MINUTES")
	envInt(&cfg.MaxHourlySnapshots, "MAX_HOURLY_SNAPSHOTS")
	envInt(&cfg.MaxDailySnapshots, "MAX_DAILY_SNAPSHOTS")
	envSeconds(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT_SECONDS")
	envString(&cfg.LogLevel, "LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func envBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(err)
	}
	*dst = b
}

func envMinutes(dst *time.Duration, key string) {
	if _, ok := os.LookupEnv(key); !ok {
		return
	}
	n := int(*dst / time.Minute)
	envInt(&n, key)
	*dst = time.Duration(n) * time.Minute
}

func envSeconds(dst *time.Duration, key string) {
	if _, ok := os.LookupEnv(key); !ok {
		return
	}
	n := int(*dst / time.Second)
	envInt(&n, key)
	*dst = time.Duration(n) * time.Second
}
