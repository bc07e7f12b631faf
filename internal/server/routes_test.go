package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/util"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type fakeBackend struct {
	healthy bool
}

func (b *fakeBackend) Start(context.Context) error { return nil }

func (b *fakeBackend) Stop(context.Context) error { return nil }

func (b *fakeBackend) Health(context.Context) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{Id: domain.ACTOR_ID_POLLER, Healthy: b.healthy}
}

type fakeFrontend struct {
}

func (f *fakeFrontend) RegisterRoutes(e *echo.Echo) {
	e.GET("/shelly", func(c echo.Context) error {
		return c.String(http.StatusOK, "device")
	})
}

func (f *fakeFrontend) Start(context.Context) error { return nil }

func (f *fakeFrontend) Stop(context.Context) error { return nil }

func TestHealthCheck(t *testing.T) {
	backend := &fakeBackend{healthy: true}
	srv := NewServer(util.LoadTestConfig(), backend, &fakeFrontend{})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	backend.healthy = false
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type reportingFrontend struct {
	fakeFrontend
	healthy bool
}

func (f *reportingFrontend) Health(context.Context) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{Id: domain.ACTOR_ID_SHELLYMQTT, Healthy: f.healthy}
}

func TestHealthCheckIncludesFrontend(t *testing.T) {
	frontend := &reportingFrontend{healthy: true}
	srv := NewServer(util.LoadTestConfig(), &fakeBackend{healthy: true}, frontend)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	frontend.healthy = false
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "health_check: FAIL", rec.Body.String())
}

func TestFrontendRoutes(t *testing.T) {
	srv := NewServer(util.LoadTestConfig(), &fakeBackend{}, &fakeFrontend{})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shelly", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "device", rec.Body.String())
	assert.Equal(t, "127.0.0.1:8080", srv.Addr)
}
