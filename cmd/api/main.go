package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/spf13/pflag"

	"github.com/bryanwahyu/trustai-client/internal/application"
	appanalysis "github.com/bryanwahyu/trustai-client/internal/application/analysis"
	appauth "github.com/bryanwahyu/trustai-client/internal/application/auth"
	appprojects "github.com/bryanwahyu/trustai-client/internal/application/projects"
	appreports "github.com/bryanwahyu/trustai-client/internal/application/reports"
	"github.com/bryanwahyu/trustai-client/internal/config"
	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
	"github.com/bryanwahyu/trustai-client/internal/domain/webstorage"
	"github.com/bryanwahyu/trustai-client/internal/infra/api"
	mysqlp "github.com/bryanwahyu/trustai-client/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/trustai-client/internal/infra/db/postgres"
	"github.com/bryanwahyu/trustai-client/internal/infra/extract"
	"github.com/bryanwahyu/trustai-client/internal/infra/httpserver"
	"github.com/bryanwahyu/trustai-client/internal/infra/report"
	"github.com/bryanwahyu/trustai-client/internal/infra/storage"
	"github.com/bryanwahyu/trustai-client/internal/middleware"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	flags := pflag.NewFlagSet("trustai-api", pflag.ContinueOnError)
	flags.StringVar(&path, "config", path, "path to config.yaml (env CONFIG_PATH)")
	debug := flags.Bool("debug", false, "log at debug level")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *debug {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]middleware.HealthChecker{}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		health["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	sessionStore, err := openStore(ctx, cfg.Storage.Session, db, logger)
	if err != nil {
		return fmt.Errorf("session storage: %w", err)
	}
	localStore, err := openStore(ctx, cfg.Storage.Local, db, logger)
	if err != nil {
		return fmt.Errorf("local storage: %w", err)
	}
	health["storage"] = &middleware.StoreHealthChecker{Store: sessionStore}

	artifacts, err := openArtifacts(ctx, cfg)
	if err != nil {
		return fmt.Errorf("report storage: %w", err)
	}

	toasts := application.NewToastQueue(0)
	metrics := middleware.NewMetrics()
	clock := application.SystemClock{}

	authSvc := &appauth.Service{Local: localStore, Logger: logger}
	client := api.New(cfg.BackendURL(), cfg.Backend.Timeout, api.TokenFunc(authSvc.Token), logger)
	authSvc.Backend = client.Auth()
	if err := authSvc.Restore(ctx); err != nil {
		logger.Warn("restore session", "err", err)
	}

	store := &appprojects.Store{
		Backend:  client.Projects(),
		Session:  authSvc,
		Notifier: toasts,
		Clock:    clock,
		Logger:   logger,
	}
	detail := &appprojects.DetailService{
		Projects: client.Projects(),
		Files:    client.Files(),
		Messages: client.Messages(),
		Analyzer: client.AI(),
		Cache:    sessionStore,
		Store:    store,
		Notifier: toasts,
		Clock:    clock,
		Logger:   logger,
		Stats:    metrics,
		TTL:      cfg.Cache.DetailTTL,
	}
	sessions := appanalysis.NewManager(appanalysis.Deps{
		Analyzer:      client.AI(),
		GuestAnalyzer: client.AI(),
		Extractor:     extract.New(cfg.Extract.TesseractPath, cfg.Extract.Language, logger),
		Notifier:      toasts,
		Clock:         clock,
		Logger:        logger,
		TextLimit:     cfg.Guest.TextLimit,
		Stats:         metrics,
	})
	renderer := report.New()
	reportSvc := &appreports.Service{
		Renderer:  renderer,
		Artifacts: artifacts,
		Clock:     clock,
		Logger:    logger,
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSecond)
	go limiter.RunCleanup(ctx, 5*time.Minute)

	if authSvc.HasToken() {
		// list awal di-fetch di background, error cukup toast
		go func() { _ = store.FetchProjects(ctx, false) }()
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Report-URL", "Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	mux.Mount("/", httpserver.NewRouter(httpserver.Services{
		Auth:     authSvc,
		Projects: store,
		Detail:   detail,
		Sessions: sessions,
		Reports:  reportSvc,
		Toasts:   toasts,
		Metrics:  metrics,
		Limiter:  limiter,
		Health:   health,
		Markdown: renderer,
		Logger:   logger,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "backend", cfg.BackendURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openDatabase connects only when a storage scope uses a SQL driver.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch {
	case cfg.UsesDriver(config.DriverMySQL) && cfg.UsesDriver(config.DriverPostgres):
		return nil, errors.New("storage cannot mix mysql and postgres")
	case cfg.UsesDriver(config.DriverMySQL):
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		return db, nil
	case cfg.UsesDriver(config.DriverPostgres):
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		return db, nil
	}
	return nil, nil
}

type purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

func openStore(ctx context.Context, sc config.StorageConfig, db *sql.DB, logger *slog.Logger) (webstorage.Store, error) {
	var (
		store webstorage.Store
		err   error
	)
	switch sc.Driver {
	case config.DriverMemory:
		return storage.NewMemory(sc.MaxBytes), nil
	case config.DriverFile:
		return storage.NewFile(sc.Path)
	case config.DriverMySQL:
		store, err = mysqlp.NewStorageRepository(ctx, db, sc.Scope)
	case config.DriverPostgres:
		store, err = postgresp.NewStorageRepository(ctx, db, sc.Scope)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	// scope session dibersihkan tiap start, mirip sessionStorage
	if p, ok := store.(purger); ok && sc.Scope == "session" {
		n, err := p.Purge(ctx, time.Now())
		if err != nil {
			logger.Warn("purge session storage", "err", err)
		} else {
			logger.Info("session storage purged", "rows", n)
		}
	}
	return store, nil
}

func openArtifacts(ctx context.Context, cfg *config.Config) (reports.ArtifactStore, error) {
	switch cfg.Reports.Driver {
	case config.ReportsMinio:
		m := cfg.Reports.Minio
		return storage.NewMinio(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
	default:
		return storage.NewDir(cfg.Reports.Dir)
	}
}
