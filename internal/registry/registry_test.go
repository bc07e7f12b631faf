package registry

import (
	"testing"

	"github.com/berfenger/meteremu/internal/adapter/envoy"
	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/service"
	"github.com/berfenger/meteremu/internal/frontend/shelly"
	"github.com/berfenger/meteremu/internal/frontend/sunspec"
	"github.com/berfenger/meteremu/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDeps(cfg config.Config) Deps {
	return Deps{
		Config:   cfg,
		Identity: domain.DeviceIdentity{MAC: "AABBCCDDEEFF"},
		Store:    service.NewSnapshotStore(nil, 1),
		Logger:   zap.NewNop(),
	}
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{"envoy"}, BackendTypes())
	assert.Equal(t, []string{"shelly", "sunspec"}, FrontendTypes())
}

func TestNewBackend(t *testing.T) {
	backend, err := NewBackend(testDeps(util.LoadTestConfig()))
	require.NoError(t, err)
	assert.IsType(t, &envoy.Backend{}, backend)
}

func TestNewFrontend(t *testing.T) {
	cfg := util.LoadTestConfig()
	frontend, err := NewFrontend(testDeps(cfg))
	require.NoError(t, err)
	assert.IsType(t, &shelly.Frontend{}, frontend)

	cfg.Frontend.Type = config.FRONTEND_TYPE_SUNSPEC
	frontend, err = NewFrontend(testDeps(cfg))
	require.NoError(t, err)
	assert.IsType(t, &sunspec.Frontend{}, frontend)
}

func TestUnknownType(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Backend.Type = "solaredge"
	_, err := NewBackend(testDeps(cfg))
	assert.ErrorContains(t, err, `unknown backend type "solaredge"`)

	cfg.Frontend.Type = "emlog"
	_, err = NewFrontend(testDeps(cfg))
	assert.ErrorContains(t, err, `unknown frontend type "emlog"`)
}
