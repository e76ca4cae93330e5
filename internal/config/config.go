package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the blog persistence server.
type Config struct {
	ServerPort    int
	LogLevel      string
	SentryDSN     string
	Environment   string
	ShutdownGrace time.Duration

	ContentRoot     string
	RegistryPath    string
	ArticlesDir     string
	BackupRetention int
	SiteConfigPath  string
	CheckSchedule   string

	RateLimit RateLimitConfig
	BackupS3  BackupS3Config
}

// RateLimitConfig bounds mutating API requests per client.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
	// TrustProxyHeaders keys clients by X-Forwarded-For/X-Real-IP instead of the peer
	// address. Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// BackupS3Config configures the off-site registry backup mirror. The mirror is disabled
// when Bucket is empty.
type BackupS3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket is configured.
func (c BackupS3Config) Enabled() bool {
	return c.Bucket != ""
}

const (
	defaultServerPort      = 8000
	defaultLogLevel        = "info"
	defaultEnvironment     = "development"
	defaultShutdownGrace   = 10 * time.Second
	defaultContentRoot     = "."
	defaultRegistryPath    = "admin/articles-db.js"
	defaultArticlesDir     = "blog/articles"
	defaultBackupRetention = 5
	defaultRateLimitRPS    = 5.0
	defaultRateLimitBurst  = 20
	defaultRateLimitTTL    = 10 * time.Minute
	defaultBackupS3Prefix  = "registry-backups"
)

// Load reads configuration values from environment variables, applying defaults where necessary.
// Relative registry and article paths are resolved against the content root.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:       getEnv("LOG_LEVEL", defaultLogLevel),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
		Environment:    getEnv("ENV", defaultEnvironment),
		ContentRoot:    getEnv("CONTENT_ROOT", defaultContentRoot),
		SiteConfigPath: os.Getenv("SITE_CONFIG"),
		CheckSchedule:  os.Getenv("CHECK_SCHEDULE"),
		BackupS3: BackupS3Config{
			Bucket:    os.Getenv("BACKUP_S3_BUCKET"),
			Prefix:    getEnv("BACKUP_S3_PREFIX", defaultBackupS3Prefix),
			Endpoint:  os.Getenv("BACKUP_S3_ENDPOINT"),
			Region:    os.Getenv("BACKUP_S3_REGION"),
			AccessKey: os.Getenv("BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("BACKUP_S3_SECRET_KEY"),
		},
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", defaultServerPort); err != nil {
		return nil, err
	}
	if cfg.BackupRetention, err = getInt("BACKUP_RETENTION", defaultBackupRetention); err != nil {
		return nil, err
	}
	if cfg.BackupRetention < 1 {
		return nil, eris.Errorf("invalid BACKUP_RETENTION value: %d", cfg.BackupRetention)
	}
	if cfg.ShutdownGrace, err = getDuration("SHUTDOWN_GRACE", defaultShutdownGrace); err != nil {
		return nil, err
	}
	if cfg.RateLimit.RequestsPerSecond, err = getFloat("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", defaultRateLimitBurst); err != nil {
		return nil, err
	}
	if cfg.RateLimit.ClientTTL, err = getDuration("RATE_LIMIT_TTL", defaultRateLimitTTL); err != nil {
		return nil, err
	}
	if cfg.RateLimit.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.ContentRoot)
	if err != nil {
		return nil, eris.Wrapf(err, "resolving CONTENT_ROOT %s", cfg.ContentRoot)
	}
	cfg.ContentRoot = root
	cfg.RegistryPath = underRoot(root, getEnv("REGISTRY_PATH", defaultRegistryPath))
	cfg.ArticlesDir = underRoot(root, getEnv("ARTICLES_DIR", defaultArticlesDir))

	return cfg, nil
}

func underRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, strconv.Itoa(fallback))
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}
