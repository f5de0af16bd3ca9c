package engine

import (
	"context"
	"time"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
)

// CatalogBuilder produces the read-only operation catalog for a namespace.
// A namespace whose model cannot be loaded yields an empty catalog, not an
// error; the task simply has nothing to execute.
type CatalogBuilder interface {
	Build(ctx context.Context, namespace string) ([]catalog.OperationDescriptor, error)
}

// TaskExecutor executes operations for a single (namespace, region) task.
// Implementations own the task-local client cache and results cache; they are
// never shared across tasks and need no internal locking beyond their own use.
type TaskExecutor interface {
	// Execute runs one operation. The returned bool reports whether the
	// operation was executed at all; false means it was skipped (for example
	// no parameter value could be inferred), which is not an error.
	Execute(ctx context.Context, op catalog.OperationDescriptor) (*ResultEnvelope, bool)
}

// ExecutorFactory creates a fresh TaskExecutor per task.
type ExecutorFactory interface {
	ForTask(namespace, region string) TaskExecutor
}

// Storage persists run records and result envelopes, and can enumerate all
// envelopes for a run. Implementations must be safe for concurrent use; the
// scheduler serializes its own counter updates but persists envelopes from
// multiple workers.
type Storage interface {
	SaveRun(ctx context.Context, run *Run) error
	SaveEnvelope(ctx context.Context, runID string, env *ResultEnvelope) error
	ListEnvelopes(ctx context.Context, runID string) ([]ResultEnvelope, error)
}

// EventType identifies the kind of a task event.
type EventType string

const (
	EventTypeTaskStarted   EventType = "task.started"
	EventTypeTaskCompleted EventType = "task.completed"
	EventTypeTaskSkipped   EventType = "task.skipped"
	EventTypeTaskFailed    EventType = "task.failed"
	EventTypeEndpointDown  EventType = "endpoint.unavailable"
)

// Event is an append-only record of task progress.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Namespace string    `json:"namespace,omitempty"`
	Region    string    `json:"region,omitempty"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher records task events. Publishing is best-effort; failures are
// ignored by the scheduler.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}
