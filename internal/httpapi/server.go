// Package httpapi provides the HTTP API for claimbank.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/claimbank/internal/hypothesis"
)

// Server exposes the hypothesis subsystem over HTTP.
type Server struct {
	echo    *echo.Echo
	service *hypothesis.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(service *hypothesis.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9290,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/trails/:trail_id/insights", s.handleInsight)
	v1.POST("/trails/:trail_id/finalize", s.handleFinalize)
	v1.GET("/hud", s.handleHUD)
	v1.GET("/hypotheses/:id", s.handleGet)
	v1.GET("/stats", s.handleStats)
	v1.POST("/hypotheses/:id/promote", s.handlePromote)
	v1.POST("/hypotheses/:id/prove", s.handleProve)
	v1.POST("/hypotheses/:id/retire", s.handleRetire)
	v1.POST("/hypotheses/:id/reactivate", s.handleReactivate)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// FinalizeRequest is the request body for POST /api/v1/trails/:trail_id/finalize.
type FinalizeRequest struct {
	Committed bool `json:"committed"`
}

// ActorRequest is the request body for curation endpoints.
type ActorRequest struct {
	Actor string `json:"actor"`
}

// HUDResponse is the response body for GET /api/v1/hud.
type HUDResponse struct {
	Entries []hypothesis.HUDEntry `json:"entries"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Hypotheses   int `json:"hypotheses"`
	ActiveTrails int `json:"active_trails"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleInsight buffers a detector insight on a running trail.
func (s *Server) handleInsight(c echo.Context) error {
	trailID := c.Param("trail_id")
	var ins hypothesis.Insight
	if err := c.Bind(&ins); err != nil {
		s.logger.Warn("invalid insight request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.service.OnInsight(c.Request().Context(), trailID, ins); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// handleFinalize commits or aborts a trail and reports the flush outcome.
func (s *Server) handleFinalize(c echo.Context) error {
	trailID := c.Param("trail_id")
	var req FinalizeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid finalize request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := s.service.OnTrailEnd(c.Request().Context(), trailID, req.Committed)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleHUD serves bounded hypothesis context for a query.
func (s *Server) handleHUD(c echo.Context) error {
	query := c.QueryParam("q")
	var opts hypothesis.RetrieveOptions
	var minConfidence float64
	if err := echo.QueryParamsBinder(c).
		Int("k", &opts.K).
		Float64("min_confidence", &minConfidence).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if c.QueryParams().Has("min_confidence") {
		opts.MinConfidence = &minConfidence
	}
	for _, raw := range c.QueryParams()["status"] {
		status := hypothesis.Status(raw)
		if !status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
		}
		opts.Statuses = append(opts.Statuses, status)
	}

	entries := s.service.Retrieve(c.Request().Context(), query, opts)
	return c.JSON(http.StatusOK, HUDResponse{Entries: entries})
}

func (s *Server) handleGet(c echo.Context) error {
	h, err := s.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, h)
}

func (s *Server) handleStats(c echo.Context) error {
	count, err := s.service.Count(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Hypotheses:   count,
		ActiveTrails: s.service.ActiveTrails(),
	})
}

func (s *Server) handlePromote(c echo.Context) error {
	return s.curate(c, s.service.Promote)
}

func (s *Server) handleProve(c echo.Context) error {
	return s.curate(c, s.service.Prove)
}

func (s *Server) handleRetire(c echo.Context) error {
	return s.curate(c, s.service.Retire)
}

func (s *Server) handleReactivate(c echo.Context) error {
	return s.curate(c, s.service.Reactivate)
}

// curate runs one human lifecycle action against a hypothesis.
func (s *Server) curate(c echo.Context, action func(context.Context, string, string) (*hypothesis.Hypothesis, error)) error {
	var req ActorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	h, err := action(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, h)
}

// mapError translates subsystem errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, hypothesis.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, hypothesis.ErrInvalidTransition),
		errors.Is(err, hypothesis.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, hypothesis.ErrEmptyClaim),
		errors.Is(err, hypothesis.ErrEmptyTrailID),
		errors.Is(err, hypothesis.ErrEmptyActor),
		errors.Is(err, hypothesis.ErrInvalidDiscoveryType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, hypothesis.ErrDependencyUnavailable):
		s.logger.Warn("backend unavailable", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dependency unavailable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
