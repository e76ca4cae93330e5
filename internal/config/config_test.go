package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"SERVER_PORT", "LOG_LEVEL", "SENTRY_DSN", "ENV", "SHUTDOWN_GRACE",
	"CONTENT_ROOT", "REGISTRY_PATH", "ARTICLES_DIR", "BACKUP_RETENTION", "SITE_CONFIG", "CHECK_SCHEDULE",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_TTL", "TRUST_PROXY_HEADERS",
	"BACKUP_S3_BUCKET", "BACKUP_S3_PREFIX", "BACKUP_S3_ENDPOINT", "BACKUP_S3_REGION",
	"BACKUP_S3_ACCESS_KEY", "BACKUP_S3_SECRET_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ServerPort != defaultServerPort {
		t.Errorf("expected default server port %d, got %d", defaultServerPort, cfg.ServerPort)
	}

	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("expected default log level %q, got %q", defaultLogLevel, cfg.LogLevel)
	}

	if cfg.Environment != defaultEnvironment {
		t.Errorf("expected default environment %q, got %q", defaultEnvironment, cfg.Environment)
	}

	if cfg.ShutdownGrace != defaultShutdownGrace {
		t.Errorf("expected shutdown grace %s, got %s", defaultShutdownGrace, cfg.ShutdownGrace)
	}

	if cfg.BackupRetention != defaultBackupRetention {
		t.Errorf("expected retention %d, got %d", defaultBackupRetention, cfg.BackupRetention)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd returned error: %v", err)
	}
	if cfg.ContentRoot != wd {
		t.Errorf("expected content root %q, got %q", wd, cfg.ContentRoot)
	}
	if cfg.RegistryPath != filepath.Join(wd, "admin", "articles-db.js") {
		t.Errorf("unexpected registry path %q", cfg.RegistryPath)
	}
	if cfg.ArticlesDir != filepath.Join(wd, "blog", "articles") {
		t.Errorf("unexpected articles dir %q", cfg.ArticlesDir)
	}

	if cfg.BackupS3.Enabled() {
		t.Errorf("expected S3 mirror to be disabled by default")
	}

	if cfg.SentryDSN != "" {
		t.Errorf("expected empty Sentry DSN, got %q", cfg.SentryDSN)
	}

	if cfg.CheckSchedule != "" {
		t.Errorf("expected no check schedule, got %q", cfg.CheckSchedule)
	}
}

func TestLoadWithExplicitValues(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SENTRY_DSN", "dsn")
	t.Setenv("ENV", "production")
	t.Setenv("SHUTDOWN_GRACE", "3s")
	t.Setenv("CONTENT_ROOT", root)
	t.Setenv("REGISTRY_PATH", "data/registry.js")
	t.Setenv("ARTICLES_DIR", "/srv/articles")
	t.Setenv("BACKUP_RETENTION", "8")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("RATE_LIMIT_TTL", "1m")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("CHECK_SCHEDULE", "@hourly")
	t.Setenv("BACKUP_S3_BUCKET", "blog-backups")
	t.Setenv("BACKUP_S3_ENDPOINT", "https://s3.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("expected server port 9090, got %d", cfg.ServerPort)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}

	if cfg.Environment != "production" {
		t.Errorf("expected environment production, got %q", cfg.Environment)
	}

	if cfg.ShutdownGrace != 3*time.Second {
		t.Errorf("expected shutdown grace 3s, got %s", cfg.ShutdownGrace)
	}

	if cfg.RegistryPath != filepath.Join(root, "data", "registry.js") {
		t.Errorf("expected registry path under root, got %q", cfg.RegistryPath)
	}

	if cfg.ArticlesDir != "/srv/articles" {
		t.Errorf("expected absolute articles dir to be kept, got %q", cfg.ArticlesDir)
	}

	if cfg.BackupRetention != 8 {
		t.Errorf("expected retention 8, got %d", cfg.BackupRetention)
	}

	if cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.RateLimit.Burst != 4 || cfg.RateLimit.ClientTTL != time.Minute || !cfg.RateLimit.TrustProxyHeaders {
		t.Errorf("unexpected rate limit %+v", cfg.RateLimit)
	}

	if !cfg.BackupS3.Enabled() || cfg.BackupS3.Prefix != defaultBackupS3Prefix {
		t.Errorf("unexpected S3 config %+v", cfg.BackupS3)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SERVER_PORT":         "invalid",
		"BACKUP_RETENTION":    "0",
		"SHUTDOWN_GRACE":      "soon",
		"RATE_LIMIT_RPS":      "fast",
		"TRUST_PROXY_HEADERS": "maybe",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for invalid %s, got nil", key)
			}

			if !strings.Contains(err.Error(), "invalid "+key+" value") {
				t.Fatalf("expected error to mention invalid %s value, got %v", key, err)
			}
		})
	}
}
