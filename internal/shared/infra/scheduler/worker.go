package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job es una tarea periódica. Debe respetar el contexto que recibe.
type Job func(ctx context.Context) error

// Worker ejecuta un Job cada intervalo hasta que se cancele el contexto.
type Worker struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	job      Job
	log      *zap.Logger
}

func NewWorker(name string, interval time.Duration, job Job, log *zap.Logger) *Worker {
	return &Worker{
		name:     name,
		interval: interval,
		timeout:  interval,
		job:      job,
		log:      log.With(zap.String("job", name)),
	}
}

// Start bloquea hasta que ctx se cancela. Lanzar con go.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 periodic job started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 periodic job stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce ejecuta el job una vez con un timeout igual al intervalo.
func (w *Worker) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.job(runCtx); err != nil {
		w.log.Warn("⚠️ periodic job failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	w.log.Debug("periodic job done", zap.Duration("took", time.Since(start)))
}
