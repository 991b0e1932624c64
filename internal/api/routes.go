package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apimw "github.com/open2e/open2e/internal/api/middleware"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())

	// backups carry whole evaluation histories
	s.echo.Use(middleware.BodyLimit("32M"))

	s.echo.Use(apimw.SameOriginCORS())

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
				s.logger.Debug().
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
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)
	api.POST("/invoke/:command", s.invoke)

	s.setupStoreRoutes(api.Group("/store"))
	s.setupDataRoutes(api)
	s.setupSystemRoutes(api)
}

func (s *Server) setupStoreRoutes(g *echo.Group) {
	g.GET("/:name", s.getStoreDocument)
	g.PUT("/:name", s.replaceStoreDocument)
	g.GET("/:name/:key", s.getStoreValue)
	g.PUT("/:name/:key", s.setStoreValue)
	g.DELETE("/:name/:key", s.deleteStoreValue)
}

func (s *Server) setupDataRoutes(api *echo.Group) {
	sql := api.Group("/sql/:db")
	sql.POST("/select", s.sqlSelect)
	sql.POST("/execute", s.sqlExecute)

	api.GET("/backup", s.exportBackup)
	api.POST("/backup", s.importBackup)
}

func (s *Server) setupSystemRoutes(api *echo.Group) {
	logs := api.Group("/logs")
	logs.GET("", s.getRecentLogs)
	logs.GET("/download", s.downloadLogFile)

	if s.scheduler != nil {
		tasks := api.Group("/scheduler/tasks")
		tasks.GET("", s.listTasks)
		tasks.GET("/:id", s.getTask)
		tasks.POST("/:id/run", s.runTask)
	}
}
