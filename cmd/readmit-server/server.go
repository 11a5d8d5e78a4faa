package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/config"
	"github.com/readmit/readmit/internal/domain/dashboard"
	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/domain/session"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/internal/platform/dataset"
	"github.com/readmit/readmit/internal/platform/db"
	"github.com/readmit/readmit/internal/platform/middleware"
	"github.com/readmit/readmit/internal/platform/reporting"
	"github.com/readmit/readmit/internal/platform/sandbox"
	"github.com/readmit/readmit/internal/platform/telemetry"
	"github.com/readmit/readmit/internal/platform/websocket"
)

const version = "0.1.0"

// sources bundles the read and write sides of the configured data source.
type sources struct {
	patients        patient.Repository
	patientWriter   patient.Writer
	dashboard       dashboard.Repository
	dashboardWriter dashboard.Writer
	pool            *pgxpool.Pool
}

func memorySources(ds *dataset.Dataset) *sources {
	p := patient.NewMemoryRepo(ds.Patients)
	d := dashboard.NewMemoryRepo(ds.Dashboard)
	return &sources{patients: p, patientWriter: p, dashboard: d, dashboardWriter: d}
}

func postgresSources(pool *pgxpool.Pool) *sources {
	p := patient.NewRepoPG(pool)
	d := dashboard.NewRepoPG(pool)
	return &sources{patients: p, patientWriter: p, dashboard: d, dashboardWriter: d, pool: pool}
}

// runInTx runs fn in one transaction when backed by Postgres.
func (s *sources) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool != nil {
		return db.WithTx(ctx, s.pool, fn)
	}
	return fn(ctx)
}

// replace writes a dataset through both writers as one unit.
func (s *sources) replace(ctx context.Context, ds *dataset.Dataset) error {
	return s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.patientWriter.ReplaceAll(ctx, ds.Patients); err != nil {
			return err
		}
		return s.dashboardWriter.Replace(ctx, ds.Dashboard)
	})
}

// seeder returns a synthetic cohort seeder writing through runInTx.
func (s *sources) seeder(logger zerolog.Logger) *sandbox.Seeder {
	return sandbox.NewSeeder(s.patientWriter, s.dashboardWriter, logger).WithTx(s.runInTx)
}

func openSources(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sources, error) {
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return postgresSources(pool), nil
	}

	ds, err := loadDataset(cfg.DatasetFile)
	if err != nil {
		return nil, err
	}
	for _, w := range ds.Warnings {
		logger.Warn().Str("dataset", cfg.DatasetFile).Msg(w)
	}
	logger.Info().Int("patients", len(ds.Patients)).Msg("loaded in-memory dataset")
	return memorySources(ds), nil
}

// app holds the long-lived components behind the HTTP surface.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	src      *sources
	hub      *websocket.Hub
	sessions *session.Store
	metrics  *telemetry.Provider
}

func newApp(cfg *config.Config, logger zerolog.Logger, src *sources) *app {
	metrics := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "readmit-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	a := &app{
		cfg:      cfg,
		logger:   logger,
		src:      src,
		hub:      websocket.NewHub(logger),
		sessions: session.NewStore(cfg.SessionTTL, logger),
		metrics:  metrics,
	}
	a.registerGauges()
	return a
}

func (a *app) registerGauges() {
	a.metrics.RegisterGauge("readmit_sessions_live", "Live dashboard sessions.", func() float64 {
		return float64(a.sessions.Len())
	})
	a.metrics.RegisterGauge("readmit_ws_clients", "Connected websocket clients.", func() float64 {
		return float64(a.hub.ClientCount())
	})
	if pool := a.src.pool; pool != nil {
		a.metrics.RegisterGauge("readmit_db_pool_total_conns", "Connections held by the Postgres pool.", func() float64 {
			return float64(pool.Stat().TotalConns())
		})
		a.metrics.RegisterGauge("readmit_db_pool_idle_conns", "Idle connections in the Postgres pool.", func() float64 {
			return float64(pool.Stat().IdleConns())
		})
	}
}

func (a *app) router() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(a.metrics.MetricsMiddleware())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.IsDev() && cfg.AuthIssuer == "" && cfg.AuthSigningKey == "" {
		a.logger.Warn().Msg("using development auth, all requests act as admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(middleware.Audit(a.logger, nil))

	e.GET("/health", a.health)
	e.GET("/metrics", a.metrics.PrometheusHandler())
	if a.src.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.src.pool))
	}
	websocket.NewHandler(a.hub, cfg.CORSOrigins, a.logger).RegisterRoutes(e.Group(""))

	apiV1 := e.Group("/api/v1",
		middleware.RequestTimeout(cfg.RequestTimeout),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		}),
	)

	patientSvc := patient.NewService(a.src.patients, patient.NewMatcher(cfg.SearchFoldAccents))
	dashboardSvc := dashboard.NewService(a.src.dashboard)
	sessionSvc := session.NewService(a.sessions, patientSvc, dashboardSvc, a.hub, a.logger).
		WithRecorder(a.metrics)

	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(apiV1)
	session.NewHandler(sessionSvc).RegisterRoutes(apiV1)
	reporting.NewHandler(dashboardSvc).RegisterRoutes(apiV1)

	if cfg.IsDev() {
		sandbox.NewSeedHandler(a.src.seeder(a.logger)).RegisterRoutes(e.Group("/sandbox", auth.RequireRole("admin")))
	}

	return e
}

func (a *app) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     version,
		"data_source": a.cfg.DataSource,
		"sessions":    a.sessions.Len(),
		"ws_clients":  a.hub.ClientCount(),
	})
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	src, err := openSources(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open data source: %w", err)
	}
	if src.pool != nil {
		defer src.pool.Close()
	}

	a := newApp(cfg, logger, src)
	e := a.router()
	go a.sessions.Run(ctx, sweepInterval(cfg.SessionTTL))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("data_source", cfg.DataSource).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
