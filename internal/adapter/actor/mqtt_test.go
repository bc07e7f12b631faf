package actor

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/meteremu/internal/config"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopHandler struct {
}

func (nopHandler) HandleFrame(context.Context, []byte) (string, []byte, error) {
	return "", nil, nil
}

func (nopHandler) ComponentStatus(*domain.MeterData) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func TestMQTTActorUnreachableBroker(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	es := &eventstream.EventStream{}
	cfg := config.MQTTConfig{
		Enable: true,
		Host:   "127.0.0.1",
		Port:   1,
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMQTTActor(cfg, "shellypro3em-AABBCCDDEEFF", nopHandler{}, es, logger)
	})
	pid := root.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	result, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.Equal(t, domain.ACTOR_ID_SHELLYMQTT, resp.Id)
	assert.False(t, resp.Healthy)
	assert.Equal(t, "connecting", resp.State)

	// snapshots are dropped while disconnected
	es.Publish(domain.SnapshotUpdatedEvent{Data: domain.ZeroMeterData(1, time.Now())})

	require.NoError(t, root.StopFuture(pid).Wait())
}
