package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/telemetry"
)

// SchedulerConfig holds the concurrency and budget settings for a run.
type SchedulerConfig struct {
	// Width is the number of concurrent task workers.
	Width int

	// OperationBudget caps the operations executed per task.
	OperationBudget int

	// BudgetOverrides replaces the operation budget for specific namespaces.
	BudgetOverrides map[string]int

	// TaskBudget is the wall-clock allowance for one task. It is checked
	// between operations; an in-flight operation is never interrupted.
	TaskBudget time.Duration

	// PriorityOperations lists, per namespace, the operations moved to the
	// front of the task's catalog. Priority operations survive budget cuts.
	PriorityOperations map[string][]string
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Width <= 0 {
		c.Width = 20
	}
	if c.OperationBudget <= 0 {
		c.OperationBudget = 40
	}
	if c.TaskBudget <= 0 {
		c.TaskBudget = 2 * time.Minute
	}
	return c
}

// Scheduler fans a run's tasks out over a bounded worker pool. Tasks are
// independent; the only cross-task state is the unavailable-endpoint set and
// the run counters, both lock-protected.
type Scheduler struct {
	cfg       SchedulerConfig
	catalog   CatalogBuilder
	executors ExecutorFactory
	storage   Storage
	events    EventPublisher
	metrics   *telemetry.Metrics
	log       zerolog.Logger

	unavailable *UnavailableSet

	// mu guards the run record's counters and error list during execution.
	mu sync.Mutex
}

// NewScheduler creates a scheduler.
func NewScheduler(
	cfg SchedulerConfig,
	catalogBuilder CatalogBuilder,
	executors ExecutorFactory,
	storage Storage,
	events EventPublisher,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:         cfg.withDefaults(),
		catalog:     catalogBuilder,
		executors:   executors,
		storage:     storage,
		events:      events,
		metrics:     metrics,
		log:         log,
		unavailable: NewUnavailableSet(),
	}
}

// Run executes the planned tasks and returns the run summary. Task failures
// are recorded on the run and never abort the other tasks; only a cancelled
// context or a storage failure on the run record itself is returned as an
// error.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, regions []string) (*RunSummary, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Regions:   regions,
		StartedAt: time.Now().UTC(),
		Counters:  RunCounters{TasksPlanned: len(tasks)},
	}
	if err := s.storage.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	// Run-level metrics and the run span come from the telemetry carried in
	// the context; without one these are no-ops.
	ctx = telemetry.WithRunContext(ctx, run.ID, "cli")
	if s.metrics != nil {
		s.metrics.SetQueuedTasks(float64(len(tasks)))
	}
	s.log.Info().Str("run_id", run.ID).Int("tasks", len(tasks)).
		Int("width", s.cfg.Width).Msg("run started")

	width := s.cfg.Width
	if len(tasks) < width {
		width = len(tasks)
	}

	queue := make(chan Task, len(tasks))
	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}
				s.runTaskSafely(ctx, run, task)
				if s.metrics != nil {
					s.metrics.SetQueuedTasks(float64(len(queue)))
				}
			}
		}()
	}
	wg.Wait()

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	if ctx.Err() != nil {
		run.Status = RunStatusCancelled
	} else {
		run.Status = RunStatusCompleted
	}

	// The final save must not inherit a cancelled context; a partial run is
	// still worth its record.
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := s.storage.SaveRun(saveCtx, run); err != nil {
		return nil, fmt.Errorf("failed to save final run state: %w", err)
	}

	elapsed := completedAt.Sub(run.StartedAt)
	telemetry.EndRunContext(ctx, string(run.Status), elapsed, ctx.Err())
	s.log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).
		Dur("elapsed", elapsed).
		Int("executed", run.Counters.Executed).
		Int("successful", run.Counters.Successful).
		Int("failed", run.Counters.Failed).
		Int("skipped", run.Counters.Skipped).
		Msg("run finished")

	return &RunSummary{
		RunID:    run.ID,
		Counters: run.Counters,
		Errors:   run.Errors,
		Elapsed:  elapsed,
	}, ctx.Err()
}

// runTaskSafely isolates one task behind panic recovery so a misbehaving
// namespace cannot take down the worker pool.
func (s *Scheduler) runTaskSafely(ctx context.Context, run *Run, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.recordTaskError(run, task, fmt.Sprintf("panic: %v", r))
			if s.metrics != nil {
				s.metrics.RecordTaskExecution(task.Namespace, "panicked", 0)
			}
			s.publishEvent(ctx, run.ID, task, EventTypeTaskFailed,
				fmt.Sprintf("task panicked: %v", r), "error")
			s.log.Error().Str("namespace", task.Namespace).Str("region", task.Region).
				Any("panic", r).Msg("task panicked")
		}
	}()
	s.runTask(ctx, run, task)
}

func (s *Scheduler) runTask(ctx context.Context, run *Run, task Task) {
	log := s.log.With().Str("namespace", task.Namespace).Str("region", task.Region).Logger()

	if s.unavailable.Contains(task.Key()) {
		s.mu.Lock()
		run.Counters.TasksSkipped++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordTaskSkipped("endpoint_unavailable")
		}
		s.publishEvent(ctx, run.ID, task, EventTypeTaskSkipped,
			"endpoint already confirmed unavailable", "info")
		log.Debug().Msg("task skipped, endpoint unavailable")
		return
	}

	started := time.Now()
	ctx = telemetry.WithTaskContext(ctx, run.ID, task.Namespace, task.Region)
	tel := telemetry.FromTelemetryContext(ctx)
	s.publishEvent(ctx, run.ID, task, EventTypeTaskStarted, "task started", "info")

	ops, err := s.catalog.Build(ctx, task.Namespace)
	if err != nil {
		s.recordTaskError(run, task, fmt.Sprintf("building catalog: %v", err))
		s.finishTask(ctx, run, task, "failed", err)
		return
	}
	ops, cut := s.applyPriorityAndBudget(task.Namespace, ops)
	s.countSkippedRemainder(run, task.Namespace, cut)
	if len(ops) == 0 {
		log.Debug().Msg("empty catalog, nothing to execute")
		s.finishTask(ctx, run, task, "completed", nil)
		return
	}

	exec := s.executors.ForTask(task.Namespace, task.Region)
	firstOutcome := true
	for _, op := range ops {
		if ctx.Err() != nil {
			s.finishTask(ctx, run, task, "cancelled", ctx.Err())
			return
		}
		if time.Since(started) > s.cfg.TaskBudget {
			log.Warn().Int("remaining", remainingAfter(ops, op.Name)).
				Msg("task budget exhausted, abandoning remaining operations")
			s.countSkippedRemainder(run, task.Namespace, remainingAfter(ops, op.Name)+1)
			break
		}

		opStart := time.Now()
		opCtx := ctx
		var opSpan trace.Span
		if tel != nil {
			opCtx, opSpan = tel.Tracer.StartOperationSpan(ctx, task.Namespace, op.Name)
		}
		env, executed := exec.Execute(opCtx, op)
		if opSpan != nil {
			if executed && env.Error != nil {
				telemetry.RecordError(opSpan, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message))
			} else if executed {
				telemetry.RecordSuccess(opSpan)
			}
			opSpan.End()
		}
		if !executed {
			s.mu.Lock()
			run.Counters.Skipped++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordOperation(task.Namespace, "skipped", time.Since(opStart))
			}
			continue
		}

		s.recordOutcome(run, task, env, time.Since(opStart))
		s.persistEnvelope(ctx, run, task, env)

		if firstOutcome && env.NotAvailable {
			// The very first reachable-or-not probe failed; the endpoint is
			// down for every operation, so stop and spare sibling tasks.
			s.unavailable.Add(task.Key())
			if s.metrics != nil {
				s.metrics.RecordEndpointUnavailable(task.Namespace, task.Region)
			}
			s.publishEvent(ctx, run.ID, task, EventTypeEndpointDown,
				"endpoint unavailable, abandoning task", "warning")
			log.Debug().Str("operation", op.Name).Msg("endpoint unavailable on first operation")
			s.countSkippedRemainder(run, task.Namespace, remainingAfter(ops, op.Name))
			break
		}
		firstOutcome = false
	}

	s.finishTask(ctx, run, task, "completed", nil)
}

// applyPriorityAndBudget reorders the catalog so the namespace's priority
// operations run first, then cuts to the namespace's operation budget.
// Priority operations survive the cut even when they alone exceed it. The
// second return is the number of operations the budget removed; the caller
// records them as skipped.
func (s *Scheduler) applyPriorityAndBudget(namespace string, ops []catalog.OperationDescriptor) ([]catalog.OperationDescriptor, int) {
	priority := s.cfg.PriorityOperations[namespace]
	ordered := ops
	if len(priority) > 0 {
		prioritySet := make(map[string]struct{}, len(priority))
		for _, name := range priority {
			prioritySet[name] = struct{}{}
		}
		byName := make(map[string]catalog.OperationDescriptor, len(ops))
		for _, op := range ops {
			byName[op.Name] = op
		}

		ordered = make([]catalog.OperationDescriptor, 0, len(ops))
		for _, name := range priority {
			if op, ok := byName[name]; ok {
				ordered = append(ordered, op)
			}
		}
		for _, op := range ops {
			if _, isPriority := prioritySet[op.Name]; !isPriority {
				ordered = append(ordered, op)
			}
		}
	}

	budget := s.cfg.OperationBudget
	if override, ok := s.cfg.BudgetOverrides[namespace]; ok {
		budget = override
	}
	cut := 0
	if budget > 0 && len(ordered) > budget {
		retained := len(priorityIn(ordered, priority))
		if retained > budget {
			budget = retained
		}
		cut = len(ordered) - budget
		ordered = ordered[:budget]
	}
	return ordered, cut
}

func priorityIn(ops []catalog.OperationDescriptor, priority []string) []string {
	set := make(map[string]struct{}, len(priority))
	for _, name := range priority {
		set[name] = struct{}{}
	}
	var present []string
	for _, op := range ops {
		if _, ok := set[op.Name]; ok {
			present = append(present, op.Name)
		}
	}
	return present
}

func remainingAfter(ops []catalog.OperationDescriptor, name string) int {
	for i, op := range ops {
		if op.Name == name {
			return len(ops) - i - 1
		}
	}
	return 0
}

func (s *Scheduler) countSkippedRemainder(run *Run, namespace string, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	run.Counters.Skipped += n
	s.mu.Unlock()
	if s.metrics != nil {
		for i := 0; i < n; i++ {
			s.metrics.RecordOperation(namespace, "skipped", 0)
		}
	}
}

func (s *Scheduler) recordOutcome(run *Run, task Task, env *ResultEnvelope, elapsed time.Duration) {
	s.mu.Lock()
	run.Counters.Executed++
	if env.Success {
		run.Counters.Successful++
	} else {
		run.Counters.Failed++
	}
	s.mu.Unlock()

	if s.metrics == nil {
		return
	}
	outcome := "successful"
	if !env.Success {
		outcome = "failed"
		if env.Error != nil {
			s.metrics.RecordError(classLabel(env), env.Error.Code)
		}
	}
	s.metrics.RecordOperation(task.Namespace, outcome, elapsed)
}

func classLabel(env *ResultEnvelope) string {
	if env.NotAvailable {
		return string(ErrorClassConnectivity)
	}
	return string(ErrorClassUnexpected)
}

func (s *Scheduler) persistEnvelope(ctx context.Context, run *Run, task Task, env *ResultEnvelope) {
	if err := s.storage.SaveEnvelope(ctx, run.ID, env); err != nil {
		s.recordTaskError(run, task, fmt.Sprintf("persisting %s: %v", env.Operation, err))
		s.log.Error().Str("namespace", task.Namespace).Str("region", task.Region).
			Str("operation", env.Operation).Err(err).Msg("failed to persist envelope")
	}
}

func (s *Scheduler) recordTaskError(run *Run, task Task, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.Errors = append(run.Errors, TaskError{
		Namespace: task.Namespace,
		Region:    task.Region,
		Message:   message,
	})
}

func (s *Scheduler) finishTask(ctx context.Context, run *Run, task Task, status string, taskErr error) {
	telemetry.EndTaskContext(ctx, task.Namespace, status, taskErr)
	eventType := EventTypeTaskCompleted
	level := "info"
	if status == "failed" {
		eventType = EventTypeTaskFailed
		level = "error"
	}
	s.publishEvent(ctx, run.ID, task, eventType, "task "+status, level)
}

// publishEvent publishes a task event. Publishing is best-effort and never
// blocks or fails the task.
func (s *Scheduler) publishEvent(ctx context.Context, runID string, task Task, eventType EventType, message, level string) {
	if s.events == nil {
		return
	}
	event := &Event{
		Type:      eventType,
		RunID:     runID,
		Namespace: task.Namespace,
		Region:    task.Region,
		Message:   message,
		Level:     level,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Debug().Err(err).Str("type", string(eventType)).Msg("event publish failed")
	}
}

// Unavailable exposes the run's unavailable-endpoint set, mainly for
// reporting after the run.
func (s *Scheduler) Unavailable() *UnavailableSet {
	return s.unavailable
}
