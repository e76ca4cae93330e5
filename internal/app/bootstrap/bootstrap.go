package bootstrap

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	promcollectors "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/articles"
	"blogpress/app/internal/config"
	"blogpress/app/internal/consistency"
	apphttp "blogpress/app/internal/http"
	"blogpress/app/internal/metrics"
	"blogpress/app/internal/registry"
)

type Dependencies struct {
	Config    config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
	// Metrics is optional for Stores; Build always creates its own.
	Metrics *metrics.Collectors
}

// Stores holds the persistence components shared by the server and the CLI.
type Stores struct {
	Site     config.Site
	Registry *registry.Store
	Articles *articles.Store
	Checker  *consistency.Checker
}

type Result struct {
	Stores
	HTTPServer *apphttp.Server
	// Scheduler is nil unless CHECK_SCHEDULE is set.
	Scheduler *consistency.Scheduler
	Gatherer  prometheus.Gatherer
	Cleanup   func(ctx context.Context) error
}

// BuildStores loads the site settings and constructs the registry store, the article
// store and the consistency checker. The S3 backup mirror is attached when configured.
func BuildStores(ctx context.Context, deps Dependencies) (Stores, error) {
	cfg := deps.Config

	site, err := config.LoadSite(cfg.SiteConfigPath)
	if err != nil {
		return Stores{}, eris.Wrap(err, "loading site settings")
	}

	var mirror registry.BackupMirror
	if cfg.BackupS3.Enabled() {
		s3Mirror, err := registry.NewS3Mirror(ctx, registry.S3Options{
			Bucket:    cfg.BackupS3.Bucket,
			Prefix:    cfg.BackupS3.Prefix,
			Endpoint:  cfg.BackupS3.Endpoint,
			Region:    cfg.BackupS3.Region,
			AccessKey: cfg.BackupS3.AccessKey,
			SecretKey: cfg.BackupS3.SecretKey,
		})
		if err != nil {
			return Stores{}, eris.Wrap(err, "creating S3 backup mirror")
		}
		mirror = s3Mirror
	}

	registryStore, err := registry.NewStore(registry.Options{
		Path:      cfg.RegistryPath,
		Retention: cfg.BackupRetention,
		Settings:  site.Settings,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
		Mirror:    mirror,
	})
	if err != nil {
		return Stores{}, eris.Wrap(err, "creating registry store")
	}

	articleStore, err := articles.NewStore(articles.Options{
		Dir:      cfg.ArticlesDir,
		Settings: site.Settings,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return Stores{}, eris.Wrap(err, "creating article store")
	}

	checker, err := consistency.NewChecker(consistency.Options{
		Registry: registryStore,
		Articles: articleStore,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return Stores{}, eris.Wrap(err, "creating consistency checker")
	}

	return Stores{
		Site:     site,
		Registry: registryStore,
		Articles: articleStore,
		Checker:  checker,
	}, nil
}

// Build composes the server: metrics registry, stores, HTTP transport and the optional
// consistency schedule.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		promcollectors.NewGoCollector(),
		promcollectors.NewProcessCollector(promcollectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.New(promRegistry)

	stores, err := BuildStores(ctx, deps)
	if err != nil {
		return Result{}, err
	}

	cfg := deps.Config
	httpServer, err := apphttp.NewServer(apphttp.Options{
		Registry:      stores.Registry,
		Articles:      stores.Articles,
		Checker:       stores.Checker,
		ContentRoot:   cfg.ContentRoot,
		IndexDocument: stores.Site.IndexDocument,
		Logger:        deps.Logger,
		SentryHub:     deps.SentryHub,
		Metrics:       deps.Metrics,
		Gatherer:      promRegistry,
		RateLimiter: apphttp.RateLimiterSettings{
			Burst:             cfg.RateLimit.Burst,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "initialising http server")
	}

	var scheduler *consistency.Scheduler
	if cfg.CheckSchedule != "" {
		scheduler, err = consistency.NewScheduler(cfg.CheckSchedule, stores.Checker, deps.Logger)
		if err != nil {
			return Result{}, eris.Wrap(err, "scheduling consistency check")
		}
	}

	cleanup := func(ctx context.Context) error {
		if scheduler == nil {
			return nil
		}
		return scheduler.Stop(ctx)
	}

	return Result{
		Stores:     stores,
		HTTPServer: httpServer,
		Scheduler:  scheduler,
		Gatherer:   promRegistry,
		Cleanup:    cleanup,
	}, nil
}
