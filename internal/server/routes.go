package server

import (
	"context"
	"net/http"
	"time"

	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	s.frontend.RegisterRoutes(e)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	if response := s.backend.Health(ctx); !response.Healthy {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if reporter, ok := s.frontend.(port.HealthReporter); ok {
		if response := reporter.Health(ctx); !response.Healthy {
			return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
		}
	}
	return c.String(http.StatusOK, "health_check: OK")
}
