// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swimdesk/lesson-notify/internal/config"
	"github.com/swimdesk/lesson-notify/internal/messaging"
	"github.com/swimdesk/lesson-notify/internal/messaging/email"
	messagingpostgres "github.com/swimdesk/lesson-notify/internal/messaging/postgres"
	"github.com/swimdesk/lesson-notify/internal/messaging/sms"
	"github.com/swimdesk/lesson-notify/internal/pkg/ctxlog"
	"github.com/swimdesk/lesson-notify/internal/pkg/httputil"
	"github.com/swimdesk/lesson-notify/internal/pkg/metrics"
	"github.com/swimdesk/lesson-notify/internal/pkg/postgres"
	rosterpostgres "github.com/swimdesk/lesson-notify/internal/roster/postgres"
	"github.com/swimdesk/lesson-notify/internal/version"
	"github.com/swimdesk/lesson-notify/migrations"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.Migrate {
		if err := postgres.Migrate(cfg.Database.URL, migrations.FS, "."); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectOutboxMetrics(ctx context.Context, repo messaging.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.OutboxStats(ctx)
			if err != nil {
				slog.Error("failed to get outbox stats", "error", err)
				continue
			}
			messaging.RecordOutboxStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	rosterRepo := rosterpostgres.NewRepository(a.db)
	messagingRepo := messagingpostgres.NewRepository(a.db)

	slog.Info("providers configured",
		"email_enabled", a.config.Email.Enabled,
		"sms_enabled", a.config.SMS.Enabled,
	)

	emailSender, err := email.NewSender(email.Config{
		Enabled:     a.config.Email.Enabled,
		APIBaseURL:  a.config.Email.APIBaseURL,
		APIKey:      a.config.Email.APIKey,
		FromAddress: a.config.Email.FromAddress,
		OrgName:     a.config.Email.OrgName,
		BrandColor:  a.config.Email.BrandColor,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	if !a.config.Email.Enabled {
		slog.Warn("email sender is disabled: email messages will be marked sent without delivery")
	}

	smsSender, err := sms.NewSender(sms.Config{
		Enabled:    a.config.SMS.Enabled,
		APIBaseURL: a.config.SMS.APIBaseURL,
		AccountSID: a.config.SMS.AccountSID,
		AuthToken:  a.config.SMS.AuthToken,
		FromNumber: a.config.SMS.FromNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("create sms sender: %w", err)
	}

	if !a.config.SMS.Enabled {
		slog.Warn("sms sender is disabled: sms messages will be marked sent without delivery")
	}

	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		BatchSize:   a.config.Dispatch.BatchSize,
		MaxRetries:  a.config.Dispatch.MaxRetries,
		RetryDelays: a.config.Dispatch.RetryDelays,
		Concurrency: a.config.Dispatch.Concurrency,
		SendRate:    a.config.Dispatch.SendRate,
		StuckAfter:  a.config.Dispatch.StuckAfter,
	}, messagingRepo, rosterRepo, rosterRepo, emailSender, smsSender)

	messagingService := messaging.NewService(messagingRepo, rosterRepo, rosterRepo)
	messagingHandler := messaging.NewHandler(messagingService, dispatcher)

	go a.collectOutboxMetrics(ctx, messagingRepo)

	if a.config.Dispatch.Secret == "" {
		slog.Warn("dispatch secret is empty: the dispatch endpoint is unauthenticated")
	}

	r.Route("/api/v1", func(r chi.Router) {
		messagingHandler.RegisterRoutes(r)
		messagingHandler.RegisterDispatchRoute(r, a.config.Dispatch.Secret)
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
