// Package app wires configuration, logging, telemetry, the
// authorization store, the binding engine, and the HTTP router into a
// runnable server with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"kslicense/internal/authz"
	"kslicense/internal/config"
	"kslicense/internal/infrastructure"
	custommw "kslicense/internal/middleware"
	"kslicense/internal/store"
	transporthttp "kslicense/internal/transport/http"
)

const AppName = "kslicense"

// Application holds all wired components of the license service.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *infrastructure.Telemetry
	Store     authz.Store
	Service   *authz.Service
	Router    chi.Router
	Server    *http.Server
}

// NewApplication builds the application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	telemetry, err := infrastructure.InitializeTelemetry(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	bolt, err := store.OpenBolt(cfg.License.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open authorization store: %w", err)
	}
	// Every store call gets its own deadline, independent of the outer
	// request timeout, so health checks are bounded too.
	st := store.WithTimeout(bolt, cfg.License.StoreTimeout)

	service, err := authz.NewService(st, cfg.License.OrgDomain, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create authorization service: %w", err)
	}

	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		Store:     st,
		Service:   service,
	}
	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)

	healthHandler := transporthttp.NewHealthHandler(a.Store, a.Logger)
	r.Get("/healthz", healthHandler.Healthz)
	r.Method(http.MethodGet, "/metrics", a.Telemetry.PrometheusHTTP)

	licenseHandler := transporthttp.NewLicenseHandler(a.Service, a.Logger)
	adminHandler := transporthttp.NewAdminHandler(a.Service, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(custommw.Timeout(a.Config.Server.RequestTimeout, a.Logger))

		r.Mount("/license", licenseHandler.Routes())

		// Trusted surface: expected to be reachable only through the
		// internal admin interface, not the public gateway.
		r.Mount("/admin", adminHandler.Routes())
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start begins serving. It returns once the listener stops; cancel is
// invoked on listener failure so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", AppName),
		slog.Int("port", a.Config.Server.Port),
		slog.String("org_domain", a.Config.License.OrgDomain),
		slog.String("store_path", a.Config.License.StorePath),
	)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()
}

// Stop gracefully shuts the server down and releases resources.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "server shutdown error", slog.String("error", err.Error()))
		firstErr = err
	}
	if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "telemetry shutdown error", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "store close error", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}
	_ = infrastructure.CloseLogFile()
	return firstErr
}

// Run starts the application and blocks until SIGINT/SIGTERM or a
// listener failure, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
