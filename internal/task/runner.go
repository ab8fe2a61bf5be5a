package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aromatch/aromatch-api/internal/recovery"
	"github.com/aromatch/aromatch-api/internal/store"
)

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// MaintenanceInterval defines how often the recovery maintenance pass
	// runs. If zero, defaults to 1 hour.
	MaintenanceInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		MaintenanceInterval:    time.Hour,
	}
}

// Runner manages background task processing. Every task execution goes
// through the recovery manager, which owns retries, circuit breaking and
// dead-lettering; the runner only moves tasks between the queue and their
// persisted status.
type Runner struct {
	store      store.TaskStore
	recovery   *recovery.Manager
	registry   *Registry
	taskChan   chan Task
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(
	tasks store.TaskStore,
	manager *recovery.Manager,
	registry *Registry,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.MaintenanceInterval == 0 {
		config.MaintenanceInterval = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		store:      tasks,
		recovery:   manager,
		registry:   registry,
		taskChan:   make(chan Task, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "task_runner"),
	}
}

// Submit persists a new task and adds it to the queue.
func (r *Runner) Submit(ctx context.Context, t Task) error {
	now := time.Now().UTC()
	rec := &store.TaskRecord{
		ID:        t.ID(),
		Type:      t.Type(),
		Payload:   t.Payload(),
		Status:    store.TaskStatusPending,
		Priority:  store.PriorityDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.InsertTask(ctx, rec); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	select {
	case r.taskChan <- t:
		return nil
	default:
		return fmt.Errorf("task queue is full, try again later")
	}
}

// Requeue rebuilds a persisted pending task and adds it to the live
// queue. Used after a dead-letter replay so the replacement task runs
// without waiting for a restart.
func (r *Runner) Requeue(ctx context.Context, taskID uuid.UUID) error {
	rec, err := r.store.FetchTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to fetch task for requeue: %w", err)
	}

	t, err := r.registry.Build(rec)
	if err != nil {
		return fmt.Errorf("failed to rebuild task %s: %w", taskID, err)
	}

	select {
	case r.taskChan <- t:
		return nil
	default:
		return fmt.Errorf("task queue is full, try again later")
	}
}

// Start recovers unfinished tasks and begins processing.
func (r *Runner) Start() error {
	if err := r.RecoverUnfinished(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	r.wg.Add(1)
	go r.maintenanceLoop()

	return nil
}

// Stop gracefully shuts down the task runner
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.taskChan)
}

// RecoverUnfinished requeues tasks left pending or processing by a
// previous run. Processing tasks were interrupted mid-flight; they go back
// to pending before requeueing. Replayed dead-letter tasks surface here as
// pending records.
func (r *Runner) RecoverUnfinished() error {
	ctx := context.Background()

	pending, err := r.store.ListTasksByStatus(ctx, store.TaskStatusPending, 0)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processing, err := r.store.ListTasksByStatus(ctx, store.TaskStatusProcessing, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"processing_count", len(processing))

	for _, rec := range pending {
		r.requeueRecord(ctx, rec)
	}

	for _, rec := range processing {
		if err := r.store.UpdateTaskStatus(ctx, rec.ID, store.TaskStatusPending, "Reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
			continue
		}
		r.requeueRecord(ctx, rec)
	}

	return nil
}

// requeueRecord rebuilds a live task from its record and enqueues it.
func (r *Runner) requeueRecord(ctx context.Context, rec *store.TaskRecord) {
	t, err := r.registry.Build(rec)
	if err != nil {
		r.logger.Error("failed to rebuild task from record",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, rec.ID, store.TaskStatusFailed, err.Error()); updateErr != nil {
			r.logger.Error("failed to mark unbuildable task failed",
				"task_id", rec.ID,
				"error", updateErr)
		}
		return
	}

	select {
	case r.taskChan <- t:
	default:
		r.logger.Error("failed to requeue task, queue is full",
			"task_id", rec.ID,
			"task_type", rec.Type)
	}
}

// worker processes tasks from the queue
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case t, ok := <-r.taskChan:
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			r.processTask(t, id)
		}
	}
}

// processTask executes a single task under the recovery manager.
func (r *Runner) processTask(t Task, workerID int) {
	ctx := context.Background()
	logger := r.logger.With(
		"task_id", t.ID(),
		"task_type", t.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateTaskStatus(ctx, t.ID(), store.TaskStatusProcessing, ""); err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}

	logger.Info("processing task")

	ectx := recovery.ErrorContext{TaskID: t.ID()}
	if rt, ok := t.(ResourceTask); ok {
		ectx.ResourceID = rt.Resource()
	}

	op := func(ctx context.Context) (any, error) {
		return nil, t.Execute(ctx)
	}
	result := r.recovery.ProcessWithRecovery(ctx, op, t.ID(), ectx)

	switch {
	case result.Success:
		logger.Info("task completed successfully", "recovery_used", result.RecoveryUsed)
		if err := r.store.UpdateTaskStatus(ctx, t.ID(), store.TaskStatusCompleted, ""); err != nil {
			logger.Error("failed to update task status to completed", "error", err)
		}

	case result.DeadLettered:
		// The task row was deleted by the move; nothing left to update.
		logger.Warn("task moved to dead letter queue", "error", result.FinalError)

	default:
		logger.Error("task execution failed", "error", result.FinalError)
		errMsg := ""
		if result.FinalError != nil {
			errMsg = result.FinalError.Error()
		}
		if err := r.store.UpdateTaskStatus(ctx, t.ID(), store.TaskStatusFailed, errMsg); err != nil {
			logger.Error("failed to update task status to failed", "error", err)
		}
	}
}

// stuckTaskMonitor periodically resets tasks that sat in "processing"
// longer than StuckTaskAge and requeues them.
func (r *Runner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuck, err := r.store.ListTasksByStatus(ctx, store.TaskStatusProcessing, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}
			if len(stuck) == 0 {
				continue
			}

			r.logger.Info("found stuck tasks", "count", len(stuck))
			for _, rec := range stuck {
				if err := r.store.UpdateTaskStatus(ctx, rec.ID, store.TaskStatusPending,
					"Reset after being stuck in processing state"); err != nil {
					r.logger.Error("failed to reset stuck task status",
						"task_id", rec.ID,
						"task_type", rec.Type,
						"error", err)
					continue
				}
				r.requeueRecord(ctx, rec)
			}
		}
	}
}

// maintenanceLoop runs the recovery maintenance pass on a fixed schedule.
func (r *Runner) maintenanceLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.recovery.PerformRecoveryMaintenance(context.Background())
		}
	}
}
