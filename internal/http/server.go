// Package http provides the HTTP API for rhythmd.
package http

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

	"github.com/myrhythm/rhythmd/internal/action"
	"github.com/myrhythm/rhythmd/internal/pipeline"
	"github.com/myrhythm/rhythmd/internal/schedule"
	"github.com/myrhythm/rhythmd/internal/store"
)

// Server provides the HTTP endpoints for rhythmd.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Service
	metrics  *Metrics
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc *pipeline.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
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
		echo:     e,
		pipeline: svc,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extractions", s.handleExtract)
	v1.GET("/meetings/:id/actions", s.handleMeetingActions)
	v1.POST("/actions/:id/status", s.handleUpdateStatus)
	v1.POST("/actions/:id/suggestions", s.handleSuggestions)
	v1.POST("/actions/:id/schedule", s.handleSchedule)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the common error body. Issues is present only for
// input validation failures.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// StatusRequest is the request body for POST /api/v1/actions/:id/status.
type StatusRequest struct {
	Status          string `json:"status"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
}

// SuggestionsRequest is the request body for
// POST /api/v1/actions/:id/suggestions.
type SuggestionsRequest struct {
	Answers     map[string]string `json:"answers"`
	HorizonDays int               `json:"horizon_days,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}

// SuggestionsResponse wraps the ranked slots.
type SuggestionsResponse struct {
	Suggestions []schedule.Suggestion `json:"suggestions"`
}

// ScheduleRequest is the request body for POST /api/v1/actions/:id/schedule.
type ScheduleRequest struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Time  string `json:"time"` // HH:MM
	Title string `json:"title,omitempty"`
}

// ScheduleResponse returns the updated action and the created event.
type ScheduleResponse struct {
	Action *action.Stored `json:"action"`
	Event  *store.Event   `json:"event"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleExtract runs the extraction pipeline for one transcript.
func (s *Server) handleExtract(c echo.Context) error {
	var req pipeline.RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid extraction request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.pipeline.Run(c.Request().Context(), req)
	if err != nil {
		var inputErr *pipeline.InputError
		switch {
		case errors.As(err, &inputErr):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Issues: inputErr.Issues})
		case errors.Is(err, pipeline.ErrAlreadyExtracted):
			return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error("extraction run failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "extraction failed"})
		}
	}

	s.metrics.RecordExtraction(result.Method, result.ActionsCount)
	return c.JSON(http.StatusOK, result)
}

// handleMeetingActions lists the persisted actions for a meeting.
func (s *Server) handleMeetingActions(c echo.Context) error {
	actions, err := s.pipeline.ActionsForMeeting(c.Request().Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("listing meeting actions failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "query failed"})
	}
	return c.JSON(http.StatusOK, actions)
}

// handleUpdateStatus moves an action through its workflow.
func (s *Server) handleUpdateStatus(c echo.Context) error {
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	to := action.Status(req.Status)
	if !action.ValidStatus(to) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown status %q", req.Status)})
	}

	updated, err := s.pipeline.UpdateStatus(c.Request().Context(), c.Param("id"), to, req.CalendarEventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		}
		// Anything else from here is a transition rule violation.
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, updated)
}

// handleSuggestions runs the scheduling engine for an action.
func (s *Server) handleSuggestions(c echo.Context) error {
	var req SuggestionsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	suggestions, err := s.pipeline.Suggest(c.Request().Context(), c.Param("id"), req.Answers, req.HorizonDays, req.Limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("suggestion run failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "suggestion run failed"})
	}
	return c.JSON(http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

// handleSchedule accepts a slot: creates the event and marks the action
// scheduled.
func (s *Server) handleSchedule(c echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "date must be YYYY-MM-DD"})
	}
	if _, err := time.Parse("15:04", req.Time); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "time must be HH:MM"})
	}

	updated, ev, err := s.pipeline.Accept(c.Request().Context(), c.Param("id"), req.Date, req.Time, req.Title)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		}
		// Transition rule violation: the action is not in a schedulable state.
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ScheduleResponse{Action: updated, Event: ev})
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
