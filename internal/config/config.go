package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DatabaseURL string // SVCLOG_DATABASE_URL (required)
	RedisAddr   string // SVCLOG_REDIS_ADDR (optional, empty = in-process cache)
	NATSURL     string // SVCLOG_NATS_URL (optional, empty = no events)
	StoresFile  string // SVCLOG_STORES_FILE (optional TOML store selection)

	SessionTTL time.Duration // SVCLOG_SESSION_TTL (default 24h)

	// Sync settings
	SyncInterval   time.Duration // SVCLOG_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // SVCLOG_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // SVCLOG_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // SVCLOG_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // SVCLOG_SYNC_S3_KEY (default "servicelog/records.jsonl")
	SyncGitRepo    string        // SVCLOG_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // SVCLOG_SYNC_GIT_FILE (default "records.jsonl")
	SyncGitBranch  string        // SVCLOG_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("SVCLOG_DATABASE_URL"),
		RedisAddr:      os.Getenv("SVCLOG_REDIS_ADDR"),
		NATSURL:        os.Getenv("SVCLOG_NATS_URL"),
		StoresFile:     os.Getenv("SVCLOG_STORES_FILE"),
		SyncS3Bucket:   os.Getenv("SVCLOG_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("SVCLOG_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("SVCLOG_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("SVCLOG_SYNC_S3_KEY", "servicelog/records.jsonl"),
		SyncGitRepo:    os.Getenv("SVCLOG_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("SVCLOG_SYNC_GIT_FILE", "records.jsonl"),
		SyncGitBranch:  envOrDefault("SVCLOG_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("SVCLOG_DATABASE_URL is required")
	}

	ttlStr := envOrDefault("SVCLOG_SESSION_TTL", "24h")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("SVCLOG_SESSION_TTL: %w", err)
	}
	c.SessionTTL = ttl

	intervalStr := envOrDefault("SVCLOG_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("SVCLOG_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Stores is the optional TOML store-selection file: it maps a record-type
// name to the backend serving it. Unlisted types use the default backend.
//
//	[stores]
//	student = "session"
type Stores struct {
	Stores map[string]string `toml:"stores"`
}

// LoadStores reads the store-selection file. A missing path yields an empty
// selection, not an error.
func LoadStores(path string) (*Stores, error) {
	s := &Stores{Stores: map[string]string{}}
	if path == "" {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, s); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("stores file %s: %w", path, err)
	}
	if s.Stores == nil {
		s.Stores = map[string]string{}
	}
	return s, nil
}

// Backend returns the configured backend for a record type, or fallback.
func (s *Stores) Backend(recordType, fallback string) string {
	if v, ok := s.Stores[recordType]; ok && v != "" {
		return v
	}
	return fallback
}
