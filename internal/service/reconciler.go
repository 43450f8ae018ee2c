package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/digkill/TGMysticBot/internal/freepik"
	"github.com/digkill/TGMysticBot/internal/metrics"
	"github.com/digkill/TGMysticBot/internal/models"
)

type PendingGenerations interface {
	GenerationStore
	ListInProgressOlderThan(ctx context.Context, age time.Duration, limit int) ([]models.Generation, error)
}

type ReconcileConfig struct {
	Schedule string
	// MinAge keeps the sweep away from records a live poll loop still owns.
	MinAge     time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

type ReconcileStats struct {
	Checked   int
	Completed int
	Failed    int
	Expired   int
	Pending   int
}

// Reconciler resolves generations left IN_PROGRESS by a poll loop that timed
// out or by a restart.
type Reconciler struct {
	cfg         ReconcileConfig
	log         *slog.Logger
	generations PendingGenerations
	provider    Provider
	outcomes    *outcomes
	now         func() time.Time
}

func NewReconciler(cfg ReconcileConfig, log *slog.Logger, generations PendingGenerations, ledger Ledger, provider Provider, mirror Mirror) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		cfg:         cfg,
		log:         log,
		generations: generations,
		provider:    provider,
		outcomes:    &outcomes{log: log, ledger: ledger, generations: generations, mirror: mirror},
		now:         time.Now,
	}
}

// Start schedules Sweep and returns the running scheduler. Overlapping runs are skipped.
func (r *Reconciler) Start(ctx context.Context) (*cron.Cron, error) {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(r.log.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(r.cfg.Schedule, func() {
		stats, err := r.Sweep(ctx)
		if err != nil {
			r.log.Error("reconcile sweep failed", "err", err)
			return
		}
		if stats.Checked > 0 {
			r.log.Info("reconcile sweep finished",
				"checked", stats.Checked,
				"completed", stats.Completed,
				"failed", stats.Failed,
				"expired", stats.Expired,
				"pending", stats.Pending)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule reconcile %q: %w", r.cfg.Schedule, err)
	}
	c.Start()
	return c, nil
}

// Sweep re-polls old IN_PROGRESS records once. Terminal answers are applied
// as the live loop would; records past StaleAfter with no terminal answer are
// failed and refunded.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats
	list, err := r.generations.ListInProgressOlderThan(ctx, r.cfg.MinAge, r.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list pending generations: %w", err)
	}

	for _, gen := range list {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		st, err := r.provider.Poll(ctx, gen.TaskID)
		if err != nil {
			r.log.Warn("reconcile poll failed", "task_id", gen.TaskID, "err", err)
		}

		switch {
		case err == nil && st.Status == freepik.StatusCompleted:
			if _, moved, err := r.outcomes.complete(ctx, gen.UserID, gen.TaskID, st.ResultURL); err == nil && moved {
				stats.Completed++
				metrics.RecordReconciled("completed")
			}
		case err == nil && st.Status == freepik.StatusFailed:
			if moved, err := r.outcomes.fail(ctx, gen.UserID, gen.TaskID, "provider_failed"); err == nil && moved {
				stats.Failed++
				metrics.RecordReconciled("failed")
			}
		case r.cfg.StaleAfter > 0 && r.now().Sub(gen.CreatedAt) >= r.cfg.StaleAfter:
			if moved, err := r.outcomes.fail(ctx, gen.UserID, gen.TaskID, "expired"); err == nil && moved {
				r.log.Info("expired stale generation", "user_id", gen.UserID, "task_id", gen.TaskID, "created_at", gen.CreatedAt)
				stats.Expired++
				metrics.RecordReconciled("expired")
			}
		default:
			stats.Pending++
		}
	}
	return stats, nil
}
