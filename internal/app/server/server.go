package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dpdp/internal/domain/analytics"
	"dpdp/internal/domain/audit"
	"dpdp/internal/domain/auth"
	"dpdp/internal/domain/consent"
	"dpdp/internal/domain/notifications"
	"dpdp/internal/domain/purposes"
	"dpdp/internal/domain/settings"
	"dpdp/internal/domain/templates"
	"dpdp/internal/domain/vendors"
	"dpdp/internal/platform/cache"
	"dpdp/internal/platform/config"
	cryptoutil "dpdp/internal/platform/crypto"
	"dpdp/internal/platform/db"
	"dpdp/internal/platform/email"
	"dpdp/internal/platform/jobs"
	"dpdp/internal/platform/metrics"
	"dpdp/internal/transport/http/api"
	analyticshandler "dpdp/internal/transport/http/handlers/analytics"
	audithandler "dpdp/internal/transport/http/handlers/audit"
	authhandler "dpdp/internal/transport/http/handlers/auth"
	consentshandler "dpdp/internal/transport/http/handlers/consents"
	publichandler "dpdp/internal/transport/http/handlers/public"
	purposeshandler "dpdp/internal/transport/http/handlers/purposes"
	settingshandler "dpdp/internal/transport/http/handlers/settings"
	templateshandler "dpdp/internal/transport/http/handlers/templates"
	vendorshandler "dpdp/internal/transport/http/handlers/vendors"
	widgethandler "dpdp/internal/transport/http/handlers/widget"
	"dpdp/internal/transport/http/middleware"
)

type TemplateService interface {
	templateshandler.Service
	publichandler.SnapshotSource
}

type ConsentService interface {
	consentshandler.Service
	publichandler.ConsentStore
}

type AuditService interface {
	audithandler.Lister
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, changes any) error
}

type Notifier interface {
	Notify(ctx context.Context, event notifications.EventType, data map[string]any)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router serves. Nil optional fields switch the
// matching feature off: no Perms uses the built-in role table, no Metrics
// hides /metrics, no Jobs runs the sweep inline.
type Deps struct {
	Config      config.Config
	Metrics     *metrics.Metrics
	Ready       map[string]Pinger
	Sessions    middleware.SessionChecker
	Perms       middleware.PermissionStore
	Idempotency middleware.IdempotencyRepository
	Users       authhandler.Users
	Crypto      authhandler.Sealer
	Templates   TemplateService
	Purposes    purposeshandler.Service
	Consents    ConsentService
	Vendors     vendorshandler.Service
	Settings    settingshandler.Store
	Analytics   analyticshandler.Service
	Audit       AuditService
	Notifier    Notifier
	Jobs        vendorshandler.JobRunner
	Sweep       jobs.RunFunc
}

// NewRouter assembles the middleware chain and every route group.
func NewRouter(d Deps) (http.Handler, error) {
	cfg := d.Config
	widgetHandler, err := widgethandler.NewHandler(d.Templates, widgethandler.Options{
		Origin:       cfg.DeploymentOrigin,
		ParentOrigin: cfg.WidgetParentOrigin,
		StrictPII:    cfg.StrictPII,
		RetryCount:   cfg.WidgetRetryCount,
		RetryDelay:   cfg.WidgetRetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("render widget loader: %w", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.PublicCORS)
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if d.Metrics != nil {
		router.Use(middleware.Metrics(d.Metrics))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, p := range d.Ready {
			if err := p.Ping(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "err", err)
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.PublicRateLimitPerMinute, time.Minute, middleware.WithKeyFunc(middleware.ClientIPKey)))
		widgetHandler.RegisterRoutes(r)
		publichandler.NewHandler(d.Templates, d.Consents).RegisterRoutes(r)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, d.Sessions))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.Idempotent(d.Idempotency))

		authhandler.NewHandler(d.Users, cfg.JWTSecret, d.Crypto).RegisterRoutes(r)
		templateshandler.NewHandler(d.Templates, d.Audit, d.Notifier, d.Perms).RegisterRoutes(r)
		purposeshandler.NewHandler(d.Purposes, d.Audit, d.Perms).RegisterRoutes(r)
		consentshandler.NewHandler(d.Consents, d.Audit, d.Notifier, d.Perms).RegisterRoutes(r)
		vendorshandler.NewHandler(d.Vendors, d.Audit, d.Perms, d.Jobs, d.Sweep).RegisterRoutes(r)
		settingshandler.NewHandler(d.Settings, d.Audit, d.Perms).RegisterRoutes(r)
		analyticshandler.NewHandler(d.Analytics, d.Perms).RegisterRoutes(r)
		audithandler.NewHandler(d.Audit, d.Perms).RegisterRoutes(r)
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})
	return router, nil
}

type App struct {
	Config config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Jobs   *jobs.Service
	Router http.Handler
}

// New connects Postgres (and Redis when configured), prepares the schema
// and wires every store and service into the router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app := &App{Config: cfg, DB: pool}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	pool := a.DB
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return err
	}
	if !crypto.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set, personal data is stored unencrypted")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	ready := map[string]Pinger{"postgres": pool}
	var snapshots templates.SnapshotCache
	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable, template cache disabled", "err", err)
	}
	if rdb != nil {
		a.Redis = rdb
		store := cache.NewSnapshots(rdb, cfg.TemplateCacheTTL)
		snapshots = store
		ready["redis"] = store
	}

	notifier := notifications.New(email.New(cfg), cfg.EmailFrom, cfg.NotifyEmail)
	notifier.Recorder = m

	authStore := auth.NewStore(pool)
	templateSvc := templates.NewService(templates.NewStore(pool), snapshots, m)
	settingsStore := settings.NewStore(pool)
	vendorStore := vendors.NewStore(pool, crypto)
	vendorSvc := vendors.NewService(vendorStore, vendors.DiskFiles{Dir: cfg.UploadDir, Sealer: crypto}, notifier, m)
	sweeper := vendors.Sweeper{Store: vendorStore, Notifier: notifier, Warning: cfg.DPAExpiryWarning}
	sweep := func(ctx context.Context) (any, error) { return sweeper.Run(ctx) }

	a.Jobs = jobs.New(jobs.PGRuns{DB: pool}, m)
	a.Jobs.Schedule(jobs.JobDPASweep, cfg.DPASweepInterval, sweep)

	router, err := NewRouter(Deps{
		Config:      cfg,
		Metrics:     m,
		Ready:       ready,
		Sessions:    authStore,
		Perms:       authStore,
		Idempotency: middleware.NewIdempotencyStore(pool),
		Users:       authStore,
		Crypto:      crypto,
		Templates:   templateSvc,
		Purposes:    purposes.NewService(purposes.NewStore(pool)),
		Consents:    consent.NewService(consent.NewStore(pool, crypto), templateSvc, settingsStore, m),
		Vendors:     vendorSvc,
		Settings:    settingsStore,
		Analytics:   analytics.NewService(analytics.NewStore(pool)),
		Audit:       audit.New(pool),
		Notifier:    notifier,
		Jobs:        a.Jobs,
		Sweep:       sweep,
	})
	if err != nil {
		return err
	}
	a.Router = router
	return nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	a.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("DPDP consent console listening", "addr", a.Config.Addr, "origin", a.Config.DeploymentOrigin)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
