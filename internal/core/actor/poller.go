package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	. "github.com/berfenger/meteremu/internal/util/actorutil"
	"go.uber.org/zap"
)

// PollCycleTimeout bounds one poll cycle, including a refresh and retry. The
// cycle context carries this deadline, so an expired cycle stops its requests.
const PollCycleTimeout = 60 * time.Second

// cycleGrace lets a cancelled Poll return before the task itself times out.
const cycleGrace = 5 * time.Second

// PollerActor drives a MeterSource on a fixed interval and publishes every
// successful result to the snapshot store.
type PollerActor struct {
	behavior   actor.Behavior
	stash      *Stash
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	pollCtx      context.Context
	cycleTimeout time.Duration
	source       port.MeterSource
	store        port.SnapshotWriter
	interval     time.Duration

	state       string
	lastSuccess time.Time
	lastError   string
	closed      bool

	logger *zap.Logger
}

type pollTick struct {
}

type pollResult struct {
	data *domain.MeterData
	err  error
}

// NewPollerActor builds the actor. pollCtx is handed to every poll cycle;
// cancelling it aborts an in-flight request.
func NewPollerActor(pollCtx context.Context, source port.MeterSource, store port.SnapshotWriter, interval time.Duration, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		pollCtx:      pollCtx,
		cycleTimeout: PollCycleTimeout,
		source:       source,
		store:        store,
		interval:     interval,
		state:        domain.POLLER_STATE_STARTING,
		logger:       ActorLogger(domain.ACTOR_ID_POLLER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// WithCycleTimeout overrides PollCycleTimeout.
func (state *PollerActor) WithCycleTimeout(timeout time.Duration) *PollerActor {
	state.cycleTimeout = timeout
	return state
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started", zap.Duration("interval", state.interval))
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		ctx.Send(ctx.Self(), pollTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.shutdown()
	case *actor.Restarting, *actor.Stopped:
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ForRequest(msg).Respond(ctx, state.health())
	case pollTick:
		state.logger.Debug("poller@default tick")
		if state.pollCtx.Err() != nil {
			return
		}
		parent, source, timeout := state.pollCtx, state.source, state.cycleTimeout
		NewBackgroundTask(ctx, func() (*pollResult, error) {
			cycleCtx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()
			data, err := source.Poll(cycleCtx)
			return &pollResult{data: data, err: err}, nil
		}).WithTimeout(timeout + cycleGrace).Recover(func(err error) pollResult {
			return pollResult{err: err}
		}).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingReceive)
	case *actor.Stopping:
		state.shutdown()
	case *actor.Stopped:
	default:
		state.logger.Debug("poller@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) WaitingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollResult:
		state.handleResult(msg)
		if state.pollCtx.Err() == nil {
			state.cancelTick = state.scheduler.RequestOnce(state.interval, ctx.Self(), pollTick{})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, state.health())
	case *actor.Stopping:
		state.shutdown()
	case *actor.Stopped:
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) handleResult(res pollResult) {
	if res.err != nil {
		state.lastError = res.err.Error()
		switch {
		case errors.Is(res.err, domain.ErrNoCredential):
			state.state = domain.POLLER_STATE_UNAUTHENTICATED
			state.logger.Warn("poller@waiting: no credential, poll skipped")
		case errors.Is(res.err, context.Canceled):
			state.logger.Debug("poller@waiting: poll cancelled")
		default:
			state.state = domain.POLLER_STATE_STALE
			state.logger.Error("poller@waiting: poll failed", zap.Error(res.err))
		}
		return
	}
	if res.data == nil {
		return
	}
	state.store.Publish(res.data)
	state.state = domain.POLLER_STATE_POLLING
	state.lastSuccess = res.data.UpdatedAt
	state.lastError = ""
}

func (state *PollerActor) health() domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:          domain.ACTOR_ID_POLLER,
		Healthy:     state.state == domain.POLLER_STATE_STARTING || state.state == domain.POLLER_STATE_POLLING,
		State:       state.state,
		LastSuccess: state.lastSuccess,
		LastError:   state.lastError,
	}
}

func (state *PollerActor) shutdown() {
	if state.closed {
		return
	}
	state.closed = true
	state.logger.Debug("poller stopping")
	if state.cancelTick != nil {
		state.cancelTick()
	}
	state.stash.Clear()
	state.source.Close()
}
