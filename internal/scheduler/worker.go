package scheduler

import (
	"context"
	"fmt"
	"time"

	"ms-voyage/internal/config"
	"ms-voyage/internal/logger"
	"ms-voyage/internal/models"
)

// HandlerFunc processes one task payload. Returning a domain error marks the
// task completed (business no-op); any other error triggers a retry with
// backoff until the attempt budget runs out and the task goes to the
// dead-letter table.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Worker polls the queue on a fixed interval and fans claimed tasks out to a
// pool of goroutines.
type Worker struct {
	DB     DBLayer
	Logger *logger.Logger
	Cfg    config.SchedulerConfig

	handlers map[string]HandlerFunc
}

func NewWorker(db DBLayer, log *logger.Logger, cfg config.SchedulerConfig) *Worker {
	return &Worker{
		DB:       db,
		Logger:   log,
		Cfg:      cfg,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a task name. Not safe to call after Start.
func (w *Worker) Register(taskName string, fn HandlerFunc) {
	w.handlers[taskName] = fn
}

// Start runs the poll loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	jobs := make(chan models.ScheduledTask)
	for i := 0; i < w.Cfg.Workers; i++ {
		go w.runWorker(ctx, jobs)
	}

	ticker := time.NewTicker(w.Cfg.PollInterval)
	defer ticker.Stop()

	w.Logger.Info("SCHEDULER", fmt.Sprintf("worker started: %d workers, poll every %s", w.Cfg.Workers, w.Cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("SCHEDULER", "worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx, jobs)
		}
	}
}

func (w *Worker) tick(ctx context.Context, jobs chan<- models.ScheduledTask) {
	tasks, err := w.DB.ClaimDueTasks(ctx, time.Now().UTC(), w.Cfg.Workers*2, w.Cfg.VisibilityTimeout)
	if err != nil {
		w.Logger.Error("SCHEDULER", fmt.Sprintf("failed to claim due tasks: %v", err))
		return
	}
	for _, task := range tasks {
		select {
		case jobs <- task:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runWorker(ctx context.Context, jobs <-chan models.ScheduledTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-jobs:
			w.handle(ctx, task)
		}
	}
}

func (w *Worker) handle(ctx context.Context, task models.ScheduledTask) {
	fn, ok := w.handlers[task.TaskName]
	if !ok {
		w.Logger.Error("SCHEDULER", fmt.Sprintf("no handler registered for %q", task.TaskName))
		if err := w.DB.MarkDead(ctx, &task, "no handler registered", time.Now().UTC()); err != nil {
			w.Logger.Error("SCHEDULER", fmt.Sprintf("failed to dead-letter task %s: %v", task.ID, err))
		}
		return
	}

	w.Logger.LogTask("RUN", task.TaskName, fmt.Sprintf("task %s, attempt %d", task.ID, task.Attempts))
	err := fn(ctx, task.Payload)

	switch {
	case err == nil:
		w.complete(ctx, task)
	case models.IsDomainError(err):
		// Business-rule failures inside a scheduled task are terminal: the
		// entity moved on and retrying would never change the outcome.
		w.Logger.LogTask("SKIP", task.TaskName, fmt.Sprintf("task %s: %v", task.ID, err))
		w.complete(ctx, task)
	default:
		w.retryOrBury(ctx, task, err)
	}
}

func (w *Worker) complete(ctx context.Context, task models.ScheduledTask) {
	if err := w.DB.MarkCompleted(ctx, task.ID, time.Now().UTC()); err != nil {
		w.Logger.Error("SCHEDULER", fmt.Sprintf("failed to mark task %s completed: %v", task.ID, err))
	}
}

func (w *Worker) retryOrBury(ctx context.Context, task models.ScheduledTask, taskErr error) {
	if task.Attempts >= w.Cfg.MaxAttempts {
		w.Logger.Error("SCHEDULER", fmt.Sprintf("task %s (%s) exhausted %d attempts: %v", task.ID, task.TaskName, task.Attempts, taskErr))
		if err := w.DB.MarkDead(ctx, &task, taskErr.Error(), time.Now().UTC()); err != nil {
			w.Logger.Error("SCHEDULER", fmt.Sprintf("failed to dead-letter task %s: %v", task.ID, err))
		}
		return
	}

	// Exponential backoff: base, 2*base, 4*base, ...
	delay := w.Cfg.RetryBackoff << (task.Attempts - 1)
	runAt := time.Now().UTC().Add(delay)
	w.Logger.LogTask("RETRY", task.TaskName, fmt.Sprintf("task %s failed (%v), retry in %s", task.ID, taskErr, delay))
	if err := w.DB.RescheduleForRetry(ctx, task.ID, runAt, taskErr.Error()); err != nil {
		w.Logger.Error("SCHEDULER", fmt.Sprintf("failed to reschedule task %s: %v", task.ID, err))
	}
}

// RunPeriodic runs fn on a fixed interval until ctx is cancelled. Used for
// maintenance sweeps (room reaping) that live outside the task queue.
func RunPeriodic(ctx context.Context, log *logger.Logger, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("SCHEDULER", fmt.Sprintf("periodic job %q started, every %s", name, interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("SCHEDULER", fmt.Sprintf("periodic job %q stopped", name))
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Error("SCHEDULER", fmt.Sprintf("periodic job %q failed: %v", name, err))
			}
		}
	}
}
