package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zawnaing-2024/vmaster/internal/backends"
	"github.com/zawnaing-2024/vmaster/internal/core"
	"github.com/zawnaing-2024/vmaster/internal/metrics"
)

type Worker struct {
	id        int
	workQueue <-chan *CheckJob
	registry  *backends.Registry
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewWorker(id int, workQueue <-chan *CheckJob, registry *backends.Registry, m *metrics.Collector, logger *zap.Logger) *Worker {
	return &Worker{
		id:        id,
		workQueue: workQueue,
		registry:  registry,
		metrics:   m,
		logger:    logger.With(zap.Int("worker_id", id)),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopped")
			return
		case job, ok := <-w.workQueue:
			if !ok {
				w.logger.Debug("Work queue closed, worker stopping")
				return
			}
			w.check(ctx, job)
		}
	}
}

// check bypasses the connection-test cache so the gauge reflects this sweep.
func (w *Worker) check(ctx context.Context, job *CheckJob) {
	b := job.Backend
	start := time.Now()

	w.registry.Forget(b.ID)
	res, err := w.registry.TestConnection(ctx, b)
	if errors.Is(err, core.ErrUnsupported) {
		w.logger.Debug("Backend kind has no check", zap.String("backend_id", b.ID), zap.String("kind", string(b.Kind)))
		return
	}
	if err != nil {
		w.logger.Error("Backend check failed to run", zap.String("backend_id", b.ID), zap.Error(err))
		return
	}

	w.metrics.SetBackendUp(b.ID, b.Kind, res.OK)
	if !res.OK {
		w.logger.Warn("Backend unreachable",
			zap.String("backend_id", b.ID),
			zap.String("backend", b.Name),
			zap.String("kind", string(b.Kind)),
			zap.String("error", res.Error),
		)
		return
	}
	w.logger.Debug("Backend check ok",
		zap.String("backend_id", b.ID),
		zap.Duration("duration", time.Since(start)),
	)
}
