package util

import (
	"github.com/berfenger/meteremu/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Frontend: config.FrontendConfig{
			Type: config.FRONTEND_TYPE_SHELLY,
			Shelly: config.ShellyConfig{
				MAC:          "AABBCCDDEEFF",
				Phases:       1,
				NotifyStatus: true,
			},
			SunSpec: config.SunSpecConfig{
				Host:         "127.0.0.1",
				Port:         1502,
				Manufacturer: "Fronius",
				Model:        "Smart Meter TS 65A-3",
			},
		},
		Backend: config.BackendConfig{
			Type: config.BACKEND_TYPE_ENVOY,
			Envoy: config.EnvoyConfig{
				Host:               "envoy.local",
				Token:              "test-token",
				PollIntervalMillis: 1000,
			},
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
	}
}
