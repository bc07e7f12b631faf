package actor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/berfenger/meteremu/internal/mqtt"
	"github.com/berfenger/meteremu/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttReconnectDelay = 5 * time.Second
	mqttRPCTimeout     = 5 * time.Second
)

// MQTTActor serves device RPC over MQTT and publishes component status after
// every snapshot.
type MQTTActor struct {
	config      config.MQTTConfig
	deviceId    string
	handler     port.RPCHandler
	eventStream *eventstream.EventStream
	eventSub    *eventstream.Subscription
	behavior    actor.Behavior
	stash       *actorutil.Stash
	scheduler   *scheduler.TimerScheduler
	client      *mqtt.MQTTClient
	connected   bool
	logger      *zap.Logger
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type mqttReconnect struct {
}

type rpcRequest struct {
	message *mqtt.RPCMessage
}

type snapshotUpdated struct {
	data *domain.MeterData
}

func NewMQTTActor(config config.MQTTConfig, deviceId string, handler port.RPCHandler, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		deviceId:    deviceId,
		handler:     handler,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_SHELLYMQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.connect(ctx)
	case mqttReconnect:
		state.logger.Debug("mqtt@starting reconnect")
		state.connect(ctx)
	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.OnlineTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.client.SubscribeToRPCTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			req, err := state.client.ParseRPCMessage(m)
			if err != nil {
				state.logger.Warn("mqtt: invalid rpc message", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			root.Send(self, rpcRequest{message: req})
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		state.logger.Info("mqtt connected", zap.String("prefix", state.client.Prefix()))
		state.connected = true
		if state.eventSub == nil && state.eventStream != nil {
			root := ctx.ActorSystem().Root
			self := ctx.Self()
			state.eventSub = state.eventStream.Subscribe(func(evt any) {
				if ev, ok := evt.(domain.SnapshotUpdatedEvent); ok {
					root.Send(self, snapshotUpdated{data: ev.Data})
				}
			})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@starting connection failed, retrying", zap.Error(msg.Error), zap.Duration("delay", mqttReconnectDelay))
		state.scheduler.SendOnce(mqttReconnectDelay, ctx.Self(), mqttReconnect{})
	case domain.ActorHealthRequest:
		actorutil.ForRequest(msg).Respond(ctx, state.health())
	case snapshotUpdated, rpcRequest:
		// dropped while disconnected
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	case *actor.Stopped:
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	case *actor.Stopped:
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		actorutil.ForRequest(msg).Respond(ctx, state.health())
	case rpcRequest:
		state.handleRPC(msg.message)
	case snapshotUpdated:
		state.publishStatus(msg.data)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		state.connected = false
		state.behavior.Become(state.StartingReceive)
		state.scheduler.SendOnce(mqttReconnectDelay, ctx.Self(), mqttReconnect{})
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) connect(ctx actor.Context) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	if state.client == nil {
		prefix := mqtt.TopicPrefix(state.config, state.deviceId)
		state.client = mqtt.CreateMQTTClient(prefix, mqtt.OptsFromConfig(state.config, state.deviceId), nil, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})
	}
	state.client.Connect(func(err error) {
		if err != nil {
			root.Send(self, MQTTConnectionLost{Error: err})
		} else {
			root.Send(self, MQTTConnected{})
		}
	}, mqttConnectTimeout)
}

func (state *MQTTActor) handleRPC(msg *mqtt.RPCMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), mqttRPCTimeout)
	defer cancel()
	dst, reply, err := state.handler.HandleFrame(ctx, msg.Payload)
	if err != nil {
		state.logger.Warn("mqtt@default rpc failed", zap.Error(err))
		return
	}
	if dst == "" {
		state.logger.Debug("mqtt@default rpc without src, no reply")
		return
	}
	topic := state.client.ResponseTopic(dst)
	state.logger.Sugar().Debugf("mqtt@publish: rpc reply %s", topic)
	state.client.Publish(topic, reply, 1, false, state.logPublishError, 5*time.Second)
}

func (state *MQTTActor) publishStatus(data *domain.MeterData) {
	statuses, err := state.handler.ComponentStatus(data)
	if err != nil {
		state.logger.Error("mqtt@default status encode failed", zap.Error(err))
		return
	}
	components := make([]string, 0, len(statuses))
	for component := range statuses {
		components = append(components, component)
	}
	sort.Strings(components)
	for _, component := range components {
		state.client.Publish(state.client.StatusTopic(component), statuses[component], 0, false, state.logPublishError, 5*time.Second)
	}
}

func (state *MQTTActor) logPublishError(err error) {
	if err != nil {
		state.logger.Error("mqtt@publishing could not publish a message", zap.Error(err))
	}
}

func (state *MQTTActor) health() domain.ActorHealthResponse {
	s := "connecting"
	if state.connected {
		s = "connected"
	}
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_SHELLYMQTT,
		Healthy: state.connected,
		State:   s,
	}
}

func (state *MQTTActor) stop() {
	if state.eventSub != nil {
		state.eventStream.Unsubscribe(state.eventSub)
		state.eventSub = nil
	}
	if state.client == nil {
		return
	}
	state.logger.Debug("mqtt: disconnect")
	if state.client.IsConnected() {
		state.client.Publish(state.client.OnlineTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
	}
	state.client.Disconnect(500 * time.Millisecond)
	state.connected = false
}
