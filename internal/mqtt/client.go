package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/berfenger/meteremu/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "true"
	MQTT_PAYLOAD_OFFLINE = "false"
)

var ErrNotRPCTopic = errors.New("not an rpc topic")

// TopicPrefix returns the configured prefix, defaulting to the device id like
// real devices do.
func TopicPrefix(cfg config.MQTTConfig, deviceId string) string {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		return deviceId
	}
	return prefix
}

func OptsFromConfig(cfg config.MQTTConfig, deviceId string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("%s_%d", deviceId, rand.IntN(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = onlineTopic(TopicPrefix(cfg, deviceId))
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(prefix string, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client: mqtt.NewClient(opts),
		prefix: prefix,
	}
}

type MQTTClient struct {
	client mqtt.Client
	prefix string
}

// RPCMessage is a request received on the rpc topic. Payload is valid JSON.
type RPCMessage struct {
	Topic   string
	Payload []byte
}

func (c *MQTTClient) Prefix() string {
	return c.prefix
}

func (c *MQTTClient) OnlineTopic() string {
	return onlineTopic(c.prefix)
}

func (c *MQTTClient) RPCTopic() string {
	return rpcTopic(c.prefix)
}

// ResponseTopic is where the answer to a request from src is published.
func (c *MQTTClient) ResponseTopic(src string) string {
	return rpcTopic(src)
}

func (c *MQTTClient) StatusTopic(component string) string {
	return fmt.Sprintf("%s/status/%s", c.prefix, component)
}

func (c *MQTTClient) EventsTopic() string {
	return fmt.Sprintf("%s/events/rpc", c.prefix)
}

func (c *MQTTClient) ParseRPCMessage(msg mqtt.Message) (*RPCMessage, error) {
	return parseRPCMessage(c.prefix, msg.Topic(), msg.Payload())
}

func parseRPCMessage(prefix, topic string, payload []byte) (*RPCMessage, error) {
	if topic != rpcTopic(prefix) {
		return nil, ErrNotRPCTopic
	}
	if !json.Valid(payload) {
		return nil, errors.New("invalid rpc payload")
	}
	return &RPCMessage{
		Topic:   topic,
		Payload: payload,
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToRPCTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.RPCTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func onlineTopic(prefix string) string {
	return fmt.Sprintf("%s/online", prefix)
}

func rpcTopic(prefix string) string {
	return fmt.Sprintf("%s/rpc", prefix)
}
