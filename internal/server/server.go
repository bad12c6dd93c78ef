// Package server exposes the retrieval, classification and compliance services over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/sopguard/config"
)

// New builds the echo instance with every route registered.
func New(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = errorHandler(baseLogger)

	origins := []string{"*"}
	if app.Config != nil && len(app.Config.Server.CORSOrigins) > 0 {
		origins = app.Config.Server.CORSOrigins
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	if app.Config != nil && app.Config.Server.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{Timeout: app.Config.Server.RequestTimeout}))
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if app.Telemetry != nil {
		e.GET("/metrics", echo.WrapHandler(app.Telemetry.Handler()))
	}

	root := e.Group("")
	corpusCfg := config.CorpusConfig{}
	if app.Config != nil {
		corpusCfg = app.Config.Corpus
	}
	(&IngestHandler{Ingester: app.Ingester, Corpus: corpusCfg}).Register(root)
	(&QueryHandler{QA: app.QA, Searcher: app.Searcher, Retrieval: retrievalOf(app)}).Register(root)
	(&IncidentHandler{Classifier: app.Classifier, Writer: app.Writer, Searcher: app.Searcher, Retrieval: retrievalOf(app), Logger: baseLogger}).Register(root)
	(&ComplianceHandler{Analyzer: app.Analyzer, Archive: app.Archive, Corpus: corpusCfg}).Register(root)
	(&ReportsHandler{Archive: app.Archive}).Register(root)
	(&HealthHandler{App: app, Corpus: corpusCfg}).Register(root)
	return e
}

func retrievalOf(app *App) config.RetrievalConfig {
	if app.Config == nil {
		return config.RetrievalConfig{ChunkSize: 500, ChunkOverlap: 50, TopK: 3, MinScore: 0.3}
	}
	return app.Config.Retrieval
}

// Run builds the service graph and serves until SIGINT/SIGTERM.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Close(shutdownCtx); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	e := New(app)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Server.Address)
		errCh <- e.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
