package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/metrics"
	"github.com/agenthands/bioguard/internal/storage/relational"
)

// Reconciler retries queued enrichment tasks with exponential backoff.
// A task that fails MaxAttempts times in total is marked dead.
type Reconciler struct {
	manager *Manager
	cfg     config.ReconcileConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewReconciler(m *Manager, cfg config.ReconcileConfig, logger *slog.Logger, met *metrics.Metrics) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reconciler{manager: m, cfg: cfg, logger: logger, metrics: met}
}

// Run calls RunOnce every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconcile pass failed", "error", err)
			} else if n > 0 {
				r.logger.Info("reconcile pass", "tasks", n)
			}
		}
	}
}

// RunOnce processes one batch of due tasks and reports how many it handled.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	tasks, err := r.manager.records.DueTasks(ctx, r.manager.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			return r.process(gctx, task)
		})
	}
	return len(tasks), g.Wait()
}

func (r *Reconciler) process(ctx context.Context, task relational.Task) error {
	unlock := r.manager.locks.Lock(task.RecordID)
	defer unlock()

	err := r.apply(ctx, task)
	switch {
	case err == nil:
		task.Status = relational.TaskDone
		task.LastError = ""
		r.metrics.Reconciled("done")
	case task.Attempts+1 >= r.cfg.MaxAttempts:
		task.Attempts++
		task.Status = relational.TaskDead
		task.LastError = err.Error()
		r.metrics.Reconciled("dead")
		r.logger.Error("enrichment task dead", "task_id", task.ID, "record_id", task.RecordID, "kind", task.Kind, "attempts", task.Attempts, "error", err)
	default:
		task.Attempts++
		task.NextAttemptAt = r.manager.now().Add(r.Backoff(task.Attempts))
		task.LastError = err.Error()
		r.metrics.Reconciled("retry")
		r.logger.Warn("enrichment task retry scheduled", "task_id", task.ID, "kind", task.Kind, "attempts", task.Attempts, "next", task.NextAttemptAt)
	}
	return r.manager.records.UpdateTask(context.WithoutCancel(ctx), task)
}

func (r *Reconciler) apply(ctx context.Context, task relational.Task) error {
	m := r.manager
	if task.Kind == relational.TaskPurge {
		return m.purge(ctx, task.RecordID)
	}

	rec, err := m.records.GetRecord(ctx, task.RecordID)
	if errors.Is(err, relational.ErrNotFound) {
		// Deleted since the task was queued.
		return nil
	}
	if err != nil {
		return err
	}

	switch task.Kind {
	case relational.TaskVector:
		if rec.Degraded {
			return nil
		}
		return m.writeVector(ctx, rec)
	case relational.TaskGraph:
		return m.writeGraph(ctx, rec)
	}
	return errors.New("unknown task kind " + string(task.Kind))
}

// Backoff returns the delay before the next try after attempts failures:
// BaseBackoff doubled per extra attempt, capped at MaxBackoff.
func (r *Reconciler) Backoff(attempts int) time.Duration {
	d := r.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if r.cfg.MaxBackoff > 0 && d >= r.cfg.MaxBackoff {
			return r.cfg.MaxBackoff
		}
	}
	return d
}
