package registry

import (
	"fmt"
	"sort"

	"github.com/berfenger/meteremu/internal/adapter/envoy"
	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/berfenger/meteremu/internal/core/service"
	"github.com/berfenger/meteremu/internal/frontend/shelly"
	"github.com/berfenger/meteremu/internal/frontend/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// Deps are the shared components handed to every constructor.
type Deps struct {
	Root        *actor.RootContext
	Config      config.Config
	Identity    domain.DeviceIdentity
	Store       *service.SnapshotStore
	EventStream *eventstream.EventStream
	Login       port.CloudLogin
	Logger      *zap.Logger
}

type BackendFactory func(deps Deps) port.Backend

type FrontendFactory func(deps Deps) port.Frontend

var backends = map[string]BackendFactory{
	config.BACKEND_TYPE_ENVOY: func(deps Deps) port.Backend {
		return envoy.NewBackend(deps.Root, deps.Config.Backend.Envoy, deps.Config.Frontend.Shelly.Phases,
			deps.Login, deps.Store, deps.Logger.With(zap.String("backend", config.BACKEND_TYPE_ENVOY)))
	},
}

var frontends = map[string]FrontendFactory{
	config.FRONTEND_TYPE_SHELLY: func(deps Deps) port.Frontend {
		return shelly.NewFrontend(deps.Root, deps.Config.Frontend.Shelly, deps.Config.MQTT, int(deps.Config.Server.Port),
			deps.Identity, deps.Store, deps.EventStream, deps.Logger)
	},
	config.FRONTEND_TYPE_SUNSPEC: func(deps Deps) port.Frontend {
		return sunspec.NewFrontend(deps.Config.Frontend.SunSpec, deps.Identity, deps.Store, deps.Logger)
	},
}

func NewBackend(deps Deps) (port.Backend, error) {
	factory, ok := backends[deps.Config.Backend.Type]
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q, known: %v", deps.Config.Backend.Type, BackendTypes())
	}
	return factory(deps), nil
}

func NewFrontend(deps Deps) (port.Frontend, error) {
	factory, ok := frontends[deps.Config.Frontend.Type]
	if !ok {
		return nil, fmt.Errorf("unknown frontend type %q, known: %v", deps.Config.Frontend.Type, FrontendTypes())
	}
	return factory(deps), nil
}

func BackendTypes() []string {
	return keys(backends)
}

func FrontendTypes() []string {
	return keys(frontends)
}

func keys[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
