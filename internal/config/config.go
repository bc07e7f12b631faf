package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	FRONTEND_TYPE_SHELLY  = "shelly"
	FRONTEND_TYPE_SUNSPEC = "sunspec"
	BACKEND_TYPE_ENVOY    = "envoy"
)

type Config struct {
	LogLevel zapcore.Level
	Server   ServerConfig   `mapstructure:"server"`
	Frontend FrontendConfig `mapstructure:"frontend"`
	Backend  BackendConfig  `mapstructure:"backend"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type ServerConfig struct {
	Host string
	Port uint
}

type FrontendConfig struct {
	Type    string
	Shelly  ShellyConfig  `mapstructure:"shelly"`
	SunSpec SunSpecConfig `mapstructure:"sunspec"`
}

type ShellyConfig struct {
	MAC          string `mapstructure:"mac"`
	Phases       int    `mapstructure:"phases"`
	MDNS         bool   `mapstructure:"mdns"`
	AdvertiseIP  string `mapstructure:"advertise_ip"`
	NotifyStatus bool   `mapstructure:"notify_status"`
}

type SunSpecConfig struct {
	Host         string
	Port         uint
	Manufacturer string
	Model        string
	Serial       string
}

type BackendConfig struct {
	Type  string
	Envoy EnvoyConfig `mapstructure:"envoy"`
}

type EnvoyConfig struct {
	Host               string
	Token              string
	Username           string
	Password           string
	Serial             string
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	VerifySSL          bool   `mapstructure:"verify_ssl"`
	RefreshCheckHours  uint32 `mapstructure:"refresh_check_hours"`
}

type MQTTConfig struct {
	Enable      bool
	Host        string
	Port        int
	Username    string
	Password    string
	TopicPrefix string `mapstructure:"topic_prefix"`
}

func (c EnvoyConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c EnvoyConfig) RefreshCheckInterval() time.Duration {
	if c.RefreshCheckHours == 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.RefreshCheckHours) * time.Hour
}

func (c EnvoyConfig) HasCloudIdentity() bool {
	return c.Username != "" && c.Password != "" && c.Serial != ""
}

// Validate checks and normalizes the configuration. Any error returned here is
// fatal: the process must not start serving.
func (c *Config) Validate() error {
	switch c.Frontend.Type {
	case FRONTEND_TYPE_SHELLY, FRONTEND_TYPE_SUNSPEC:
	default:
		return fmt.Errorf("unknown frontend type %q", c.Frontend.Type)
	}
	if c.Backend.Type != BACKEND_TYPE_ENVOY {
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}

	if err := CheckPhases(c.Frontend.Shelly.Phases); err != nil {
		return err
	}
	if c.Frontend.Shelly.MAC != "" {
		mac, err := NormalizeMAC(c.Frontend.Shelly.MAC)
		if err != nil {
			return err
		}
		c.Frontend.Shelly.MAC = mac
	}

	envoy := c.Backend.Envoy
	if envoy.Host == "" {
		return errors.New("config param backend.envoy.host is required")
	}
	if envoy.Token == "" && !envoy.HasCloudIdentity() {
		return errors.New("config param backend.envoy.token or backend.envoy.username/password/serial is required")
	}
	if envoy.PollIntervalMillis < 500 {
		return errors.New("config param backend.envoy.poll_interval_millis should be >= 500")
	}

	if c.MQTT.Enable && c.MQTT.Host == "" {
		return errors.New("config param mqtt.host is required when mqtt is enabled")
	}
	return nil
}

// ResolveMAC returns the configured hardware address or one derived from the
// host name.
func (c *Config) ResolveMAC(derive func(string) string) string {
	if c.Frontend.Shelly.MAC != "" {
		return c.Frontend.Shelly.MAC
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return derive(host)
}

func CheckPhases(phases int) error {
	if phases != 1 && phases != 3 {
		return errors.New("config param frontend.shelly.phases must be 1 or 3")
	}
	return nil
}

var macRegexp = regexp.MustCompile("^[0-9A-F]{12}$")

// NormalizeMAC strips separators and upper-cases a hardware address.
func NormalizeMAC(mac string) (string, error) {
	v := strings.ToUpper(mac)
	v = strings.ReplaceAll(v, ":", "")
	v = strings.ReplaceAll(v, "-", "")
	if !macRegexp.MatchString(v) {
		return "", errors.New("config param frontend.shelly.mac must be 12 hex characters")
	}
	return v, nil
}

var envRegexp = regexp.MustCompile(`\$\{([^}]+)\}`)

// SubstituteEnv replaces ${VAR} references with environment values. A
// reference to an unset variable is an error.
func SubstituteEnv(value string, lookup func(string) (string, bool)) (string, error) {
	var missing error
	out := envRegexp.ReplaceAllStringFunc(value, func(m string) string {
		name := envRegexp.FindStringSubmatch(m)[1]
		v, ok := lookup(name)
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("environment variable %q is not set", name)
			}
			return m
		}
		return v
	})
	return out, missing
}
