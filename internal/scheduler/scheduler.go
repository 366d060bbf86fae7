// Package scheduler runs the periodic maintenance sweep: it finishes
// account removals that were interrupted and checks every active backend.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/config"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/db"
	"github.com/zawnaing-2024/vmaster/internal/lifecycle"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
)

type Scheduler struct {
	repo      *db.Repository
	registry  *backends.Registry
	lifecycle *lifecycle.Controller
	metrics   *metrics.Collector
	logger    *zap.Logger
	config    config.SchedulerConfig
	wg        sync.WaitGroup
}

func NewScheduler(repo *db.Repository, registry *backends.Registry, lc *lifecycle.Controller,
	m *metrics.Collector, logger *zap.Logger, cfg config.SchedulerConfig) *Scheduler {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Scheduler{
		repo:      repo,
		registry:  registry,
		lifecycle: lc,
		metrics:   m,
		logger:    logger,
		config:    cfg,
	}
}

// Start sweeps once immediately and then every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Int("worker_count", s.config.WorkerCount),
		zap.Duration("interval", s.config.Interval),
	)
	ctx = core.WithActor(ctx, core.SystemActor("scheduler"))

	workQueue := make(chan *CheckJob, 1000)
	s.startWorkers(ctx, workQueue)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx, workQueue)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			close(workQueue)
			s.wg.Wait()
			return
		case <-ticker.C:
			s.sweep(ctx, workQueue)
		}
	}
}

// RunOnce performs a single sweep and waits for every check to finish.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx = core.WithActor(ctx, core.SystemActor("scheduler"))

	workQueue := make(chan *CheckJob, 1000)
	s.startWorkers(ctx, workQueue)
	s.sweep(ctx, workQueue)
	close(workQueue)
	s.wg.Wait()
}

func (s *Scheduler) startWorkers(ctx context.Context, workQueue <-chan *CheckJob) {
	for i := 0; i < s.config.WorkerCount; i++ {
		worker := NewWorker(i, workQueue, s.registry, s.metrics, s.logger)
		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.Start(ctx)
		}(worker)
	}
}

func (s *Scheduler) sweep(ctx context.Context, workQueue chan<- *CheckJob) {
	s.resumeDeletions(ctx)
	s.scheduleChecks(ctx, workQueue)
}

func (s *Scheduler) resumeDeletions(ctx context.Context) {
	report, err := s.lifecycle.ResumePendingDeletions(ctx)
	if err != nil {
		s.logger.Error("Failed to resume pending deletions", zap.Error(err))
		return
	}
	if n := len(report.Accounts); n > 0 {
		s.logger.Info("Pending deletions processed",
			zap.Int("accounts", n),
			zap.Int("failed", report.Count(lifecycle.OutcomeFailed)),
		)
	}
}

func (s *Scheduler) scheduleChecks(ctx context.Context, workQueue chan<- *CheckJob) {
	list, err := s.repo.ListBackends(ctx)
	if err != nil {
		s.logger.Error("Failed to list backends to check", zap.Error(err))
		return
	}

	for _, b := range list {
		if b.Status != core.BackendActive {
			continue
		}

		select {
		case workQueue <- &CheckJob{Backend: b}:
			s.logger.Debug("Scheduled check", zap.String("backend_id", b.ID))
		default:
			s.logger.Warn("Work queue full, dropping check", zap.String("backend_id", b.ID))
		}
	}
}

type CheckJob struct {
	Backend *core.VpnBackend
}
