package envoy

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/meteremu/internal/config"
	coreactor "github.com/berfenger/meteremu/internal/core/actor"
	"github.com/berfenger/meteremu/internal/core/domain"
	"github.com/berfenger/meteremu/internal/core/port"
	"github.com/berfenger/meteremu/internal/core/service"
	"github.com/berfenger/meteremu/internal/util/actorutil"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Backend polls an Envoy gateway through a poller actor and keeps its
// credential fresh.
type Backend struct {
	root     *actor.RootContext
	config   config.EnvoyConfig
	source   *ProductionSource
	creds    *service.CredentialManager
	watch    *service.CredentialWatch
	store    port.SnapshotWriter
	interval time.Duration

	pid    *actor.PID
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewBackend(root *actor.RootContext, cfg config.EnvoyConfig, phases int, login port.CloudLogin, store port.SnapshotWriter, logger *zap.Logger) *Backend {
	identity := domain.CloudIdentity{
		Username: cfg.Username,
		Password: cfg.Password,
		Serial:   cfg.Serial,
	}
	creds := service.NewCredentialManager(cfg.Token, identity, login, actorutil.ActorLogger("credential", logger))
	var watch *service.CredentialWatch
	if creds.HasIdentity() {
		watch = service.NewCredentialWatch(creds, cfg.RefreshCheckInterval(), actorutil.ActorLogger("credential", logger))
	}
	return &Backend{
		root:     root,
		config:   cfg,
		source:   NewProductionSource(cfg.Host, phases, cfg.VerifySSL, creds, logger),
		creds:    creds,
		watch:    watch,
		store:    store,
		interval: cfg.PollInterval(),
		logger:   logger,
	}
}

// Start obtains a credential and spawns the poller. A failed login is not
// fatal: polls are skipped until a credential becomes available.
func (b *Backend) Start(ctx context.Context) error {
	if err := b.creds.Obtain(ctx); err != nil {
		b.logger.Warn("envoy: starting without credential", zap.Error(err))
	}
	if b.watch != nil {
		if err := b.watch.Start(context.Background()); err != nil {
			return err
		}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	props := actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewPollerActor(pollCtx, b.source, b.store, b.interval, b.logger)
	})
	pid, err := b.root.SpawnNamed(props, domain.ACTOR_ID_POLLER)
	if err != nil {
		cancel()
		b.stopWatch(ctx)
		return err
	}
	b.pid = pid
	b.cancel = cancel
	b.logger.Info("envoy backend started", zap.String("host", b.config.Host), zap.Duration("interval", b.interval))
	return nil
}

// Stop cancels any in-flight request and waits for the poller to terminate.
func (b *Backend) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	err := actorutil.StopAndWait(ctx, b.root, b.pid)
	b.pid = nil
	b.stopWatch(ctx)
	b.source.Close()
	b.logger.Info("envoy backend stopped")
	return err
}

func (b *Backend) stopWatch(ctx context.Context) {
	if b.watch != nil {
		b.watch.Stop(ctx)
	}
}

func (b *Backend) Health(ctx context.Context) domain.ActorHealthResponse {
	if b.pid == nil {
		return domain.ActorHealthResponse{Id: domain.ACTOR_ID_POLLER, State: "stopped"}
	}
	res, err := b.root.RequestFuture(b.pid, domain.ActorHealthRequest{}, healthTimeout).Result()
	if err != nil {
		return domain.ActorHealthResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Id:                 domain.ACTOR_ID_POLLER,
			LastError:          err.Error(),
		}
	}
	health, ok := res.(domain.ActorHealthResponse)
	if !ok {
		return domain.ActorHealthResponse{Id: domain.ACTOR_ID_POLLER}
	}
	return health
}

// ensure interface compliance
var _ port.Backend = (*Backend)(nil)
