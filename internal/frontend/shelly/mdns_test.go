package shelly

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTXTRecords(t *testing.T) {
	assert.Equal(t, []string{
		"id=shellypro3em-aabbccddeeff",
		"mac=AABBCCDDEEFF",
		"arch=esp32",
		"gen=2",
		"app=Pro3EM",
	}, TXTRecords(testIdentity))
}

func TestHostName(t *testing.T) {
	host := HostName()
	assert.True(t, strings.HasSuffix(host, ".local."))
	assert.NotContains(t, strings.TrimSuffix(host, ".local."), ".")
}

func TestAdvertiserStartStop(t *testing.T) {
	a := NewAdvertiser(testIdentity, 8080, "127.0.0.1", zap.NewNop())
	if err := a.Start(); err != nil {
		t.Skipf("no multicast interface available: %v", err)
	}
	assert.Len(t, a.servers, 2, "http and shelly services")

	a.Stop()
	assert.Nil(t, a.servers)

	// a second stop is a no-op
	a.Stop()
	assert.Nil(t, a.servers)
}
