// Package server exposes the capture ingestion and read API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/internal/capture"
	"github.com/mohammad-safakhou/lifeos/internal/pipeline"
	"github.com/mohammad-safakhou/lifeos/internal/search"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
)

// Ingestor accepts new captures.
type Ingestor interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (string, error)
}

// Records reads capture records.
type Records interface {
	Get(ctx context.Context, id string) (*capture.Record, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*capture.Record, error)
}

// Searcher queries the capture index.
type Searcher interface {
	Search(ctx context.Context, userID, q string, limit int) ([]search.Hit, error)
}

// Deps are the server's collaborators. Search, Metrics and Health are optional.
type Deps struct {
	Ingestor Ingestor
	Records  Records
	Search   Searcher
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
	Health   func(ctx context.Context) error
}

type Server struct {
	e      *echo.Echo
	cfg    config.ServerConfig
	deps   Deps
	logger *zap.Logger
}

func New(cfg config.ServerConfig, tel config.TelemetryConfig, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{e: echo.New(), cfg: cfg, deps: d, logger: d.Logger}
	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", s.healthz)
	if tel.Enabled {
		e.GET(tel.MetricsPath, echo.WrapHandler(d.Metrics.Handler()))
	}

	api := e.Group("/api", AuthMiddleware([]byte(cfg.JWTSecret)))
	captures := api.Group("/captures")
	captures.POST("", s.createCapture, middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadBytes)))
	captures.GET("", s.listCaptures)
	captures.GET("/search", s.searchCaptures)
	captures.GET("/:id", s.getCapture)
	return s
}

func (s *Server) Handler() http.Handler { return s.e }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Address))
		errCh <- s.e.Start(s.cfg.Address)
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
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	fields := []zap.Field{zap.Int("status", code), zap.String("method", req.Method),
		zap.String("path", req.URL.Path), zap.String("remote", c.RealIP()), zap.Error(err)}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, HTTPError{Error: msg})
	}
}

func (s *Server) healthz(c echo.Context) error {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
	}
	return c.String(http.StatusOK, "ok")
}
