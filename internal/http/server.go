package http

import (
	"context"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/articles"
	"blogpress/app/internal/consistency"
	"blogpress/app/internal/content"
	"blogpress/app/internal/metrics"
	"blogpress/app/internal/registry"
)

// RegistryStore is the registry persistence used by the API.
type RegistryStore interface {
	Write(ctx context.Context, source string) (registry.WriteResult, error)
	Status(ctx context.Context) (registry.Status, error)
	Load(ctx context.Context) (*content.Registry, error)
	NextCode(ctx context.Context) (string, error)
	Backups(ctx context.Context) ([]registry.Backup, error)
}

// ArticleStore is the article file persistence used by the API.
type ArticleStore interface {
	Save(ctx context.Context, code string, files map[string]string) ([]string, error)
	Delete(ctx context.Context, code string, languages []string) ([]string, error)
	Exists(ctx context.Context, code, lang string) (bool, error)
}

// Checker runs the registry and article file reconciliation.
type Checker interface {
	Check(ctx context.Context) (consistency.Report, error)
	Last() (consistency.Report, bool)
}

var (
	_ RegistryStore = (*registry.Store)(nil)
	_ ArticleStore  = (*articles.Store)(nil)
	_ Checker       = (*consistency.Checker)(nil)
)

// Options configures the HTTP server wiring.
type Options struct {
	Registry RegistryStore
	Articles ArticleStore
	Checker  Checker
	// ContentRoot is the directory served for every non-API path.
	ContentRoot string
	// IndexDocument replaces "/" when serving static files. Defaults to index.html.
	IndexDocument string
	Logger        *logrus.Logger
	SentryHub     *sentry.Hub
	Metrics       *metrics.Collectors
	// Gatherer backs /metrics. The endpoint is not registered when nil.
	Gatherer    prometheus.Gatherer
	RateLimiter RateLimiterSettings
}

// RateLimiterSettings configures the limiter applied to mutating API requests.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
	// TrustProxyHeaders keys clients by X-Forwarded-For/X-Real-IP instead of RemoteAddr.
	TrustProxyHeaders bool
}

// Server routes the JSON API through Huma and everything else to the static file server.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	handler     stdhttp.Handler
	registry    RegistryStore
	articles    ArticleStore
	checker     Checker
	root        string
	index       string
	logger      *logrus.Logger
	sentry      *sentry.Hub
	metrics     *metrics.Collectors
	gatherer    prometheus.Gatherer
	rateLimiter *RateLimiter
	trustProxy  bool
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, eris.New("registry store is required")
	}
	if opts.Articles == nil {
		return nil, eris.New("article store is required")
	}
	if opts.Checker == nil {
		return nil, eris.New("consistency checker is required")
	}
	if opts.ContentRoot == "" {
		return nil, eris.New("content root is required")
	}

	root, err := filepath.Abs(opts.ContentRoot)
	if err != nil {
		return nil, eris.Wrapf(err, "resolving content root %s", opts.ContentRoot)
	}

	index := opts.IndexDocument
	if index == "" {
		index = "index.html"
	}
	if strings.ContainsAny(index, `/\`) {
		return nil, eris.Errorf("index document %q must be a plain file name", index)
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("blogpress", "1.0.0")
	config.Info.Description = "Persistence API for the multi-language blog editor."
	config.OpenAPIPath = "/api/openapi"
	config.DocsPath = "/api/docs"
	config.SchemasPath = "/api/schemas"

	api := humago.New(mux, config)

	srv := &Server{
		api:         api,
		mux:         mux,
		registry:    opts.Registry,
		articles:    opts.Articles,
		checker:     opts.Checker,
		root:        root,
		index:       index,
		logger:      opts.Logger,
		sentry:      opts.SentryHub,
		metrics:     opts.Metrics,
		gatherer:    opts.Gatherer,
		rateLimiter: NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL),
		trustProxy:  settings.TrustProxyHeaders,
	}

	srv.registerMiddlewares()
	srv.registerRoutes()

	srv.handler = srv.withSentry(srv.withRecovery(srv.withRequestID(srv.withAccessLog(srv.withCORS(stdhttp.HandlerFunc(srv.route))))))

	return srv, nil
}

// Handler exposes the fully wrapped HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.handler
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.routeTagMiddleware(),
		s.rateLimitMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerSaveDatabaseRoute()
	s.registerSaveArticleRoute()
	s.registerDeleteArticleRoute()
	s.registerDatabaseStatusRoute()
	s.registerArticleExistsRoute()
	s.registerNextCodeRoute()
	s.registerArticlesRoutes()
	s.registerRegistryCheckRoute()
	s.registerBackupsRoute()
	s.registerHealthRoute()

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.handler.ServeHTTP(w, r)
}

// route sends API, health and metrics paths to the mux and every other path to the
// static file server. Static paths never reach the mux so that unclean paths are judged
// by the traversal check instead of being redirected.
func (s *Server) route(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	path := r.URL.Path
	isAPI := strings.HasPrefix(path, "/api/")
	if !isAPI && path != "/healthz" && path != "/metrics" {
		setRoute(r.Context(), "static")
		s.serveStatic(w, r)
		return
	}

	_, pattern := s.mux.Handler(r)
	if pattern == "" {
		if isAPI {
			setRoute(r.Context(), "unknown")
			writeJSON(w, stdhttp.StatusNotFound, errorBody{Error: "Unknown API endpoint"})
			return
		}
		setRoute(r.Context(), "static")
		s.serveStatic(w, r)
		return
	}

	setRoute(r.Context(), pattern)
	// ServeHTTP, unlike Handler, populates the request's path values.
	s.mux.ServeHTTP(w, r)
}

func (s *Server) contentRootAvailable() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}
