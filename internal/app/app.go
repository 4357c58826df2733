// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-escalator/api/openapi"
	"github.com/bissquit/incident-escalator/internal/config"
	"github.com/bissquit/incident-escalator/internal/escalation"
	"github.com/bissquit/incident-escalator/internal/incidents"
	"github.com/bissquit/incident-escalator/internal/notifications/email"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
	"github.com/bissquit/incident-escalator/internal/pkg/httputil"
	"github.com/bissquit/incident-escalator/internal/pkg/metrics"
	"github.com/bissquit/incident-escalator/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         *store
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *escalation.Scheduler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)
	metrics.RecordBuildInfo(version.Version, version.GitCommit)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	st, err := openStore(connectCtx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open incident store: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		store:         st,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	scheduler, err := app.setupEscalation(metricsCtx)
	if err != nil {
		st.close()
		metricsCancel()
		return nil, fmt.Errorf("setup escalation: %w", err)
	}
	app.scheduler = scheduler

	router := app.setupRouter()

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
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops both HTTP servers, then the scheduler, then closes the store.
// No new incidents arrive once the servers are down, so running escalations
// finish against a live store.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var g errgroup.Group
	g.Go(func() error {
		if err := a.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})
	err := g.Wait()

	if a.scheduler != nil {
		if stopErr := a.scheduler.Shutdown(ctx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}

	a.metricsCancel()
	a.store.close()

	return err
}

func (a *App) collectDBMetrics(ctx context.Context) {
	a.store.recordMetrics()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.store.recordMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the escalation scheduler.
// Used in tests to inspect pending escalations. Returns nil if SMTP is disabled.
func (a *App) Scheduler() *escalation.Scheduler {
	return a.scheduler
}

// setupEscalation wires composer, mailer, dispatcher and scheduler, re-registers
// pending incidents and starts the scheduler. Escalation stays off while SMTP
// is disabled so that incidents are never marked notified without an email.
func (a *App) setupEscalation(ctx context.Context) (*escalation.Scheduler, error) {
	smtpCfg := a.config.SMTP
	escCfg := a.config.Escalation

	slog.Info("escalation configured",
		"smtp_enabled", smtpCfg.Enabled,
		"workers", escCfg.NumWorkers,
		"template", escCfg.TemplateName,
	)

	if !smtpCfg.Enabled {
		slog.Warn("smtp is disabled: overdue incidents will not be escalated until it is enabled")
		return nil, nil
	}

	composer, err := escalation.NewComposer(escalation.ComposerConfig{
		TemplateName: escCfg.TemplateName,
		Templates:    escCfg.Templates,
		Subject:      escCfg.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("create email composer: %w", err)
	}

	sender, err := email.NewSender(email.Config{
		Enabled:      smtpCfg.Enabled,
		SMTPHost:     smtpCfg.Host,
		SMTPPort:     smtpCfg.Port,
		SMTPUser:     smtpCfg.User,
		SMTPPassword: smtpCfg.Password,
		FromAddress:  smtpCfg.FromAddress,
		ImplicitTLS:  smtpCfg.TLS,
		RateLimit:    smtpCfg.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	dispatcher := escalation.NewDispatcher(a.store.repo, composer, sender)

	scheduler := escalation.NewScheduler(escalation.SchedulerConfig{
		NumWorkers:  escCfg.NumWorkers,
		FireTimeout: escCfg.FireTimeout,
	}, dispatcher)

	if _, err := escalation.Recover(ctx, a.store.repo, scheduler); err != nil {
		return nil, fmt.Errorf("recover pending escalations: %w", err)
	}

	scheduler.Start(ctx)

	return scheduler, nil
}

func (a *App) setupRouter() *chi.Mux {
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
	r.Use(httputil.MaxBodyMiddleware(a.config.Server.MaxBodyBytes))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(openapi.Spec)
	})

	// A nil scheduler is stored as a nil interface so the service can check it.
	var registrar incidents.EscalationScheduler
	if a.scheduler != nil {
		registrar = a.scheduler
	}

	incidentsService := incidents.NewService(a.store.repo, registrar)
	incidentsHandler := incidents.NewHandler(incidentsService)

	r.Route("/api/v1", func(r chi.Router) {
		incidentsHandler.RegisterRoutes(r)
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.repo.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Get())
}
