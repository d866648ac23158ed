// Package server exposes the canvas agent over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/log"
	"github.com/smallnest/researchcanvas/models"
)

// Options configures a Server.
type Options struct {
	Runner *canvas.Runner

	// DefaultProvider is bound to requests for any agent other than the
	// Google research agent.
	DefaultProvider models.Provider

	// CORSOrigins defaults to http://localhost:3000.
	CORSOrigins []string

	// Metrics is optional; without it /metrics is not served.
	Metrics *Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is the HTTP front end of the canvas agent.
type Server struct {
	echo            *echo.Echo
	runner          *canvas.Runner
	defaultProvider models.Provider
	metrics         *Metrics
	now             func() time.Time
}

// New creates a server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = models.DefaultProvider
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:3000"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		echo:            echo.New(),
		runner:          opts.Runner,
		defaultProvider: opts.DefaultProvider,
		metrics:         opts.Metrics,
		now:             opts.Now,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"*", HeaderThreadID},
		AllowCredentials: true,
	}))
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
		s.runner.AddListener(s.metrics.StepListener())
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/health", s.health)
	e.POST("/copilotkit", s.copilotKit)
	e.GET("/graph", s.diagram)

	threads := e.Group("/threads/:id")
	threads.GET("/state", s.getState)
	threads.PUT("/state", s.putState)
	threads.GET("/history", s.history)
	threads.POST("/resume", s.resume)
	threads.GET("/report", s.report)
	threads.DELETE("", s.deleteThread)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	log.Info("listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// errorHandler writes every error as {"error": message}.
func errorHandler(err error, c echo.Context) {
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
	if code >= http.StatusInternalServerError {
		log.Error("%d %s %s: %v", code, req.Method, req.URL.Path, err)
	} else {
		log.Warn("%d %s %s: %v", code, req.Method, req.URL.Path, err)
	}

	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}

func requestLogger() echo.MiddlewareFunc {
	logger := log.Named("http")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("%s %s %d %s from %s", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP)
			return nil
		},
	})
}
