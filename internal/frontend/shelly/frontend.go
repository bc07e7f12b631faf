package shelly

import (
	"context"
	"time"

	adactor "github.com/berfenger/meteremu/internal/adapter/actor"
	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/berfenger/meteremu/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Frontend emulates a Shelly Pro 3EM over HTTP, WebSocket and optionally
// MQTT, and advertises itself over mDNS.
type Frontend struct {
	identity    domain.DeviceIdentity
	config      config.ShellyConfig
	mqttConfig  config.MQTTConfig
	port        int
	dispatcher  *Dispatcher
	hub         *Hub
	advertiser  *Advertiser
	root        *actor.RootContext
	eventStream *eventstream.EventStream
	eventSub    *eventstream.Subscription
	mqttPID     *actor.PID
	logger      *zap.Logger
}

func NewFrontend(root *actor.RootContext, cfg config.ShellyConfig, mqttCfg config.MQTTConfig, httpPort int,
	identity domain.DeviceIdentity, store port.SnapshotReader, eventStream *eventstream.EventStream, logger *zap.Logger) *Frontend {
	logger = logger.With(zap.String("frontend", config.FRONTEND_TYPE_SHELLY))
	dispatcher := NewDispatcher(identity, store)
	return &Frontend{
		identity:    identity,
		config:      cfg,
		mqttConfig:  mqttCfg,
		port:        httpPort,
		dispatcher:  dispatcher,
		hub:         NewHub(dispatcher, logger),
		advertiser:  NewAdvertiser(identity, httpPort, cfg.AdvertiseIP, logger),
		root:        root,
		eventStream: eventStream,
		logger:      logger,
	}
}

func (f *Frontend) Dispatcher() *Dispatcher {
	return f.dispatcher
}

func (f *Frontend) RegisterRoutes(e *echo.Echo) {
	f.registerHTTPRoutes(e)
	e.GET("/rpc", f.hub.HandleWebSocket)
}

func (f *Frontend) Start(ctx context.Context) error {
	if f.config.NotifyStatus && f.eventStream != nil {
		f.eventSub = f.eventStream.Subscribe(func(evt any) {
			if ev, ok := evt.(domain.SnapshotUpdatedEvent); ok {
				f.hub.NotifyStatus(ev.Data)
			}
		})
	}

	if f.config.MDNS {
		if err := f.advertiser.Start(); err != nil {
			// serving works without discovery
			f.logger.Error("shelly: mdns disabled", zap.Error(err))
		}
	}

	if f.mqttConfig.Enable && f.root != nil {
		props := actor.PropsFromProducer(func() actor.Actor {
			return adactor.NewMQTTActor(f.mqttConfig, f.identity.DeviceID(), f.dispatcher, f.eventStream, f.logger)
		})
		pid, err := f.root.SpawnNamed(props, domain.ACTOR_ID_SHELLYMQTT)
		if err != nil {
			f.Stop(ctx)
			return err
		}
		f.mqttPID = pid
	}

	f.logger.Info("shelly: serving", zap.String("id", f.identity.DeviceID()), zap.Strings("methods", f.dispatcher.Methods()))
	return nil
}

func (f *Frontend) Stop(ctx context.Context) error {
	var err error
	if f.mqttPID != nil {
		err = actorutil.StopAndWait(ctx, f.root, f.mqttPID)
		f.mqttPID = nil
	}
	if f.eventSub != nil {
		f.eventStream.Unsubscribe(f.eventSub)
		f.eventSub = nil
	}
	f.advertiser.Stop()
	f.hub.Close()
	return err
}

// Health reports the MQTT session when MQTT is enabled. HTTP serving has no
// state of its own.
func (f *Frontend) Health(ctx context.Context) domain.ActorHealthResponse {
	if f.mqttPID == nil {
		return domain.ActorHealthResponse{Id: config.FRONTEND_TYPE_SHELLY, Healthy: true, State: "serving"}
	}
	res, err := f.root.RequestFuture(f.mqttPID, domain.ActorHealthRequest{}, healthTimeout).Result()
	if err != nil {
		return domain.ActorHealthResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Id:                 domain.ACTOR_ID_SHELLYMQTT,
			LastError:          err.Error(),
		}
	}
	health, ok := res.(domain.ActorHealthResponse)
	if !ok {
		return domain.ActorHealthResponse{Id: domain.ACTOR_ID_SHELLYMQTT}
	}
	return health
}

// ensure interface compliance
var _ port.Frontend = (*Frontend)(nil)
var _ port.HealthReporter = (*Frontend)(nil)
