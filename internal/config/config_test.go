package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Frontend: FrontendConfig{
			Type:   FRONTEND_TYPE_SHELLY,
			Shelly: ShellyConfig{Phases: 1},
		},
		Backend: BackendConfig{
			Type: BACKEND_TYPE_ENVOY,
			Envoy: EnvoyConfig{
				Host:               "192.168.1.10",
				Token:              "jwt",
				PollIntervalMillis: 2000,
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]func(c *Config){
		"frontend type": func(c *Config) { c.Frontend.Type = "emlog" },
		"backend type":  func(c *Config) { c.Backend.Type = "solaredge" },
		"phases":        func(c *Config) { c.Frontend.Shelly.Phases = 2 },
		"mac":           func(c *Config) { c.Frontend.Shelly.MAC = "nothex" },
		"host":          func(c *Config) { c.Backend.Envoy.Host = "" },
		"no credential": func(c *Config) { c.Backend.Envoy.Token = "" },
		"partial login": func(c *Config) { c.Backend.Envoy.Token = ""; c.Backend.Envoy.Username = "me@example.com" },
		"poll interval": func(c *Config) { c.Backend.Envoy.PollIntervalMillis = 100 },
		"mqtt host":     func(c *Config) { c.MQTT.Enable = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateCloudIdentityOnly(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Envoy.Token = ""
	cfg.Backend.Envoy.Username = "me@example.com"
	cfg.Backend.Envoy.Password = "secret"
	cfg.Backend.Envoy.Serial = "122212345678"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Backend.Envoy.HasCloudIdentity())
}

func TestValidateNormalizesMAC(t *testing.T) {
	cfg := validConfig()
	cfg.Frontend.Shelly.MAC = "aa:bb:cc:dd:ee:ff"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "AABBCCDDEEFF", cfg.Frontend.Shelly.MAC)
}

func TestResolveMAC(t *testing.T) {
	cfg := validConfig()
	derived := cfg.ResolveMAC(func(host string) string { return "0123456789AB" })
	assert.Equal(t, "0123456789AB", derived)

	cfg.Frontend.Shelly.MAC = "AABBCCDDEEFF"
	assert.Equal(t, "AABBCCDDEEFF", cfg.ResolveMAC(func(string) string { return "unused" }))
}

func TestNormalizeMAC(t *testing.T) {
	mac, err := NormalizeMAC("aa-bb-cc-dd-ee-ff")
	require.NoError(t, err)
	assert.Equal(t, "AABBCCDDEEFF", mac)

	_, err = NormalizeMAC("AABBCCDDEE")
	assert.Error(t, err)
}

func TestIntervals(t *testing.T) {
	cfg := EnvoyConfig{PollIntervalMillis: 2000}
	assert.Equal(t, "2s", cfg.PollInterval().String())
	assert.Equal(t, "24h0m0s", cfg.RefreshCheckInterval().String())
	cfg.RefreshCheckHours = 6
	assert.Equal(t, "6h0m0s", cfg.RefreshCheckInterval().String())
}

func TestSubstituteEnv(t *testing.T) {
	env := map[string]string{"ENVOY_TOKEN": "abc", "HOST": "envoy"}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	out, err := SubstituteEnv("${ENVOY_TOKEN}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "abc", out)

	out, err = SubstituteEnv("https://${HOST}.local/${ENVOY_TOKEN}", lookup)
	require.NoError(t, err)
	assert.Equal(t, "https://envoy.local/abc", out)

	out, err = SubstituteEnv("plain", lookup)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = SubstituteEnv("${MISSING}", lookup)
	assert.ErrorContains(t, err, "MISSING")
}
