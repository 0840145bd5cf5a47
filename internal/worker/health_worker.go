package worker

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
)

const probeLockKey = "ticket-sync:health-probe-lock"

// HealthWorker sweeps enabled integrations with connectivity probes on a
// cron schedule. Probes feed the same failure budget as live traffic, so a
// recovered platform flips ERROR back to ACTIVE without operator action.
type HealthWorker struct {
	cfg          config.HealthProbeConfig
	integrations repository.IntegrationRepository
	svc          *service.IntegrationService
	redis        *persistence.Redis
	logger       *zap.Logger
	cron         *cron.Cron
}

// NewHealthWorker constructs the worker.
func NewHealthWorker(cfg config.HealthProbeConfig, integrations repository.IntegrationRepository, svc *service.IntegrationService, redis *persistence.Redis, logger *zap.Logger) *HealthWorker {
	return &HealthWorker{
		cfg:          cfg,
		integrations: integrations,
		svc:          svc,
		redis:        redis,
		logger:       logger,
	}
}

// Start schedules the sweep. Returns without scheduling when probing is
// disabled.
func (w *HealthWorker) Start(ctx context.Context) error {
	if !w.cfg.Enabled {
		w.logger.Info("health probes disabled")
		return nil
	}
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.cfg.CronSpec, func() { w.sweep(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("health probe worker started", zap.String("cron", w.cfg.CronSpec))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *HealthWorker) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// sweep probes every enabled integration. A redis lock keeps concurrent
// instances from double-probing; losing the lock just skips this cycle.
func (w *HealthWorker) sweep(ctx context.Context) {
	acquired, err := w.redis.AcquireLock(ctx, probeLockKey, w.cfg.LockTTL())
	if err != nil {
		w.logger.Warn("probe lock unavailable, sweeping anyway", zap.Error(err))
	} else if !acquired {
		return
	} else {
		defer func() { _ = w.redis.ReleaseLock(ctx, probeLockKey) }()
	}

	list, err := w.integrations.List(ctx, repository.IntegrationFilter{EnabledOnly: true, Limit: 500})
	if err != nil {
		w.logger.Error("list integrations for probe", zap.Error(err))
		return
	}

	for idx := range list {
		integration := &list[idx]
		if _, err := w.svc.TestConnection(ctx, integration.ID); err != nil {
			w.logger.Warn("health probe failed",
				zap.String("integration_id", integration.ID),
				zap.String("platform", integration.Platform),
				zap.Error(err))
		}
	}
	w.logger.Debug("health probe sweep complete", zap.Int("count", len(list)))
}
