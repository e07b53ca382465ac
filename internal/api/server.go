package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sadeshahansana5-cloud/mediadex/internal/backfill"
	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/flags"
	"github.com/sadeshahansana5-cloud/mediadex/internal/ingest"
	"github.com/sadeshahansana5-cloud/mediadex/internal/query"
	"github.com/sadeshahansana5-cloud/mediadex/internal/stats"
	"github.com/sadeshahansana5-cloud/mediadex/internal/websocket"
)

// Server handles HTTP requests for the MediaDex API.
type Server struct {
	echo   *echo.Echo
	hub    *websocket.Hub
	logger zerolog.Logger
	cfg    *config.Config

	store       *catalog.Store
	engine      *query.Engine
	pipeline    *ingest.Pipeline
	coordinator *backfill.Coordinator
	statsSvc    *stats.Service
	flags       *flags.Flags
}

// NewServer creates a new API server instance.
func NewServer(
	cfg *config.Config,
	hub *websocket.Hub,
	store *catalog.Store,
	engine *query.Engine,
	pipeline *ingest.Pipeline,
	coordinator *backfill.Coordinator,
	statsSvc *stats.Service,
	fl *flags.Flags,
	logger zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		hub:         hub,
		logger:      logger.With().Str("component", "api").Logger(),
		cfg:         cfg,
		store:       store,
		engine:      engine,
		pipeline:    pipeline,
		coordinator: coordinator,
		statsSvc:    statsSvc,
		flags:       fl,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
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

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")

	api.GET("/search", s.search)

	api.GET("/files", s.listFiles)
	api.GET("/files/facets", s.listFacets)
	api.GET("/files/:id", s.getFile)
	api.GET("/files/:id/delivery", s.resolveDelivery)

	api.POST("/ingest", s.ingestEvent)

	api.POST("/backfill", s.proposeBackfill)
	api.POST("/backfill/:proposalId/confirm", s.confirmBackfill)
	api.GET("/backfill/:channel", s.backfillStatus)
	api.DELETE("/backfill/:channel", s.cancelBackfill)

	api.GET("/stats", s.getStats)

	api.GET("/flags", s.getFlags)
	api.PUT("/flags", s.updateFlags)
}

// Start begins serving on the given address.
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

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
