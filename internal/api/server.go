// Package api assembles the HTTP server: middleware, routes, and lifecycle.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/activity"
	"github.com/deskhand/deskhand/internal/api/middleware"
	"github.com/deskhand/deskhand/internal/chat"
	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/history"
	"github.com/deskhand/deskhand/internal/models"
	"github.com/deskhand/deskhand/internal/scheduler"
	"github.com/deskhand/deskhand/internal/websocket"
)

// Deps carries everything the server needs. All services are constructed
// by the caller, the server only routes to them.
type Deps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Hub       *websocket.Hub
	Activity  *activity.Manager
	Scheduler *scheduler.Scheduler
	Models    *models.Service
	History   *history.Service
	Chat      *chat.Service
}

// Server handles HTTP requests for the deskhand API.
type Server struct {
	echo     *echo.Echo
	logger   zerolog.Logger
	cfg      *config.Config
	hub      *websocket.Hub
	activity *activity.Manager
	sched    *scheduler.Scheduler

	modelsService  *models.Service
	historyService *history.Service
	chatService    *chat.Service
}

// NewServer creates a new API server instance.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		logger:         deps.Logger.With().Str("component", "api").Logger(),
		cfg:            deps.Config,
		hub:            deps.Hub,
		activity:       deps.Activity,
		sched:          deps.Scheduler,
		modelsService:  deps.Models,
		historyService: deps.History,
		chatService:    deps.Chat,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())

	s.echo.Use(echomw.RequestID())

	s.echo.Use(middleware.SecurityHeaders())

	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Compressing the event stream or a websocket upgrade would
			// buffer frames that must go out immediately.
			if c.Request().Header.Get("Upgrade") == "websocket" {
				return true
			}
			return c.Path() == "/models/download"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	modelsHandlers := models.NewHandlers(s.modelsService)
	modelsHandlers.RegisterRoutes(s.echo)

	historyHandlers := history.NewHandlers(s.historyService)
	historyHandlers.RegisterRoutes(s.echo.Group("/history"))

	chatHandlers := chat.NewHandlers(s.chatService)
	chatHandlers.RegisterRoutes(s.echo.Group("/chat"))

	s.echo.GET("/activity", s.getActivity)

	s.echo.GET("/tasks", s.listTasks)
	s.echo.POST("/tasks/:id/run", s.runTask)

	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
