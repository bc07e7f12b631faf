package port

import (
	"context"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/labstack/echo/v4"
)

// Frontend exposes snapshots over an emulated device protocol.
type Frontend interface {
	RegisterRoutes(e *echo.Echo)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthReporter is implemented by frontends that run their own actors.
type HealthReporter interface {
	Health(ctx context.Context) domain.ActorHealthResponse
}
