package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu     sync.Mutex
	polls  atomic.Int32
	closed atomic.Bool
	// returned in order, the last one repeats
	results []pollResult
	block   bool
	started chan struct{}
	once    sync.Once
}

func (s *fakeSource) Poll(ctx context.Context) (*domain.MeterData, error) {
	n := int(s.polls.Add(1))
	if s.block {
		if s.started != nil {
			s.once.Do(func() { close(s.started) })
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil, errors.New("no result")
	}
	idx := n - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx].data, s.results[idx].err
}

func (s *fakeSource) Close() {
	s.closed.Store(true)
}

func testLogger() *zap.Logger {
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	return zap.Must(logCfg.Build())
}

func spawnPoller(t *testing.T, pollCtx context.Context, source *fakeSource, store *service.SnapshotStore, interval time.Duration) (*actor.ActorSystem, *actor.PID) {
	return spawnPollerWithTimeout(t, pollCtx, source, store, interval, PollCycleTimeout)
}

func spawnPollerWithTimeout(t *testing.T, pollCtx context.Context, source *fakeSource, store *service.SnapshotStore, interval, cycleTimeout time.Duration) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	as := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(pollCtx, source, store, interval, testLogger()).WithCycleTimeout(cycleTimeout)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_POLLER)
	require.NoError(t, err)
	return as, pid
}

func requestHealth(t *testing.T, as *actor.ActorSystem, pid *actor.PID) domain.ActorHealthResponse {
	t.Helper()
	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	health, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	return health
}

func TestPollerPublishes(t *testing.T) {
	data := domain.NewMeterData([]domain.PhaseData{{ActPower: 520, Voltage: 231}}, time.Now())
	source := &fakeSource{results: []pollResult{{data: data}}}
	store := service.NewSnapshotStore(nil, 1)

	as, pid := spawnPoller(t, context.Background(), source, store, 50*time.Millisecond)
	defer as.Shutdown()

	assert.Eventually(t, func() bool {
		return store.Load() == data
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return source.polls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond, "polls repeat on the interval")

	health := requestHealth(t, as, pid)
	assert.True(t, health.Healthy)
	assert.Equal(t, domain.ACTOR_ID_POLLER, health.Id)
	assert.Equal(t, domain.POLLER_STATE_POLLING, health.State)

	require.NoError(t, as.Root.StopFuture(pid).Wait())
	assert.True(t, source.closed.Load())
}

func TestPollerFailureKeepsSnapshot(t *testing.T) {
	data := domain.NewMeterData([]domain.PhaseData{{ActPower: 100}}, time.Now())
	source := &fakeSource{results: []pollResult{
		{data: data},
		{err: errors.New("gateway unreachable")},
	}}
	store := service.NewSnapshotStore(nil, 1)

	as, pid := spawnPoller(t, context.Background(), source, store, 30*time.Millisecond)
	defer as.Shutdown()

	assert.Eventually(t, func() bool {
		return source.polls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.Same(t, data, store.Load())
	health := requestHealth(t, as, pid)
	assert.False(t, health.Healthy)
	assert.Equal(t, domain.POLLER_STATE_STALE, health.State)
	assert.Equal(t, "gateway unreachable", health.LastError)
}

func TestPollerNoCredential(t *testing.T) {
	source := &fakeSource{results: []pollResult{{err: domain.ErrNoCredential}}}
	store := service.NewSnapshotStore(nil, 1)
	initial := store.Load()

	as, pid := spawnPoller(t, context.Background(), source, store, 30*time.Millisecond)
	defer as.Shutdown()

	assert.Eventually(t, func() bool {
		return source.polls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "keeps trying every cycle")

	assert.Same(t, initial, store.Load())
	health := requestHealth(t, as, pid)
	assert.Equal(t, domain.POLLER_STATE_UNAUTHENTICATED, health.State)
}

func TestPollerStopsPromptly(t *testing.T) {
	source := &fakeSource{block: true, started: make(chan struct{})}
	store := service.NewSnapshotStore(nil, 1)

	pollCtx, cancel := context.WithCancel(context.Background())
	as, pid := spawnPoller(t, pollCtx, source, store, time.Hour)
	defer as.Shutdown()

	select {
	case <-source.started:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never started")
	}

	start := time.Now()
	cancel()
	require.NoError(t, as.Root.StopFuture(pid).Wait())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, source.closed.Load(), "network session closed on stop")
	assert.EqualValues(t, 1, source.polls.Load())
}

func TestPollerAnswersHealthDuringPoll(t *testing.T) {
	source := &fakeSource{block: true, started: make(chan struct{})}
	store := service.NewSnapshotStore(nil, 1)

	pollCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	as, pid := spawnPoller(t, pollCtx, source, store, time.Hour)
	defer as.Shutdown()

	select {
	case <-source.started:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never started")
	}

	start := time.Now()
	health := requestHealth(t, as, pid)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, health.Healthy)
	assert.Equal(t, domain.POLLER_STATE_STARTING, health.State)
}

func TestPollerCycleDeadline(t *testing.T) {
	source := &fakeSource{block: true}
	store := service.NewSnapshotStore(nil, 1)

	as, pid := spawnPollerWithTimeout(t, context.Background(), source, store, 10*time.Millisecond, 50*time.Millisecond)
	defer as.Shutdown()

	assert.Eventually(t, func() bool {
		return source.polls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond, "an expired cycle lets the next one run")

	health := requestHealth(t, as, pid)
	assert.Equal(t, domain.POLLER_STATE_STALE, health.State)
	assert.Contains(t, health.LastError, context.DeadlineExceeded.Error())
}
