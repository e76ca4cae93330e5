package bootstrap

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blogpress/app/internal/config"
	applog "blogpress/app/internal/log"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	root := t.TempDir()
	return config.Config{
		ContentRoot:     root,
		RegistryPath:    filepath.Join(root, "admin", "articles-db.js"),
		ArticlesDir:     filepath.Join(root, "blog", "articles"),
		BackupRetention: 5,
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
			ClientTTL:         time.Minute,
		},
	}
}

func TestBuildWiresServer(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.CheckSchedule = "@every 1h"

	result, err := Build(context.Background(), Dependencies{Config: cfg, Logger: applog.Discard()})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if result.Scheduler == nil {
		t.Fatalf("expected scheduler for configured schedule")
	}
	if result.Registry.Path() != cfg.RegistryPath {
		t.Fatalf("unexpected registry path %q", result.Registry.Path())
	}

	rec := httptest.NewRecorder()
	result.HTTPServer.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/next-code", nil))
	if rec.Code != 200 {
		t.Fatalf("expected next-code to respond, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	result.HTTPServer.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected metrics endpoint, got %d", rec.Code)
	}

	result.Scheduler.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := result.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
}

func TestBuildStoresUsesSiteSettings(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SiteConfigPath = filepath.Join(cfg.ContentRoot, "site.yaml")
	if err := os.WriteFile(cfg.SiteConfigPath, []byte("codePrefix: POST\ncodeWidth: 4\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	stores, err := BuildStores(context.Background(), Dependencies{Config: cfg, Logger: applog.Discard()})
	if err != nil {
		t.Fatalf("BuildStores returned error: %v", err)
	}

	code, err := stores.Registry.NextCode(context.Background())
	if err != nil {
		t.Fatalf("NextCode returned error: %v", err)
	}
	if code != "POST0001" {
		t.Fatalf("expected POST0001, got %q", code)
	}
}

func TestBuildRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.CheckSchedule = "whenever"

	if _, err := Build(context.Background(), Dependencies{Config: cfg, Logger: applog.Discard()}); err == nil {
		t.Fatalf("expected invalid schedule to fail")
	}
}
