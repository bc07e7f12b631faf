package service

import (
	"context"
	"fmt"
	"time"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const credentialCheckJobName = "credential-expiry-check"

// CredentialWatch runs the credential expiry check on a fixed cadence,
// independent of the poll interval.
type CredentialWatch struct {
	manager  *CredentialManager
	interval time.Duration
	sched    quartz.Scheduler
	logger   *zap.Logger
}

func NewCredentialWatch(manager *CredentialManager, interval time.Duration, logger *zap.Logger) *CredentialWatch {
	return &CredentialWatch{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

func (w *CredentialWatch) Start(ctx context.Context) error {
	sched := quartz.NewStdScheduler()
	sched.Start(ctx)

	check := job.NewFunctionJob(func(ctx context.Context) (bool, error) {
		if err := w.manager.CheckExpiry(ctx); err != nil {
			w.logger.Warn("credential watch: check failed", zap.Error(err))
			return false, err
		}
		return true, nil
	})
	detail := quartz.NewJobDetail(check, quartz.NewJobKey(credentialCheckJobName))
	if err := sched.ScheduleJob(detail, quartz.NewSimpleTrigger(w.interval)); err != nil {
		sched.Stop()
		return fmt.Errorf("credential watch: schedule: %w", err)
	}
	w.sched = sched
	w.logger.Info("credential watch started", zap.Duration("interval", w.interval))
	return nil
}

func (w *CredentialWatch) Stop(ctx context.Context) {
	if w.sched == nil {
		return
	}
	w.sched.Stop()
	w.sched.Wait(ctx)
	w.sched = nil
}
