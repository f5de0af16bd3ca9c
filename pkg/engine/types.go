package engine

import (
	"sync"
	"time"
)

// Task is one (namespace, region) unit of work. Tasks are created once at plan
// time; a global namespace always resolves to exactly one task pinned to the
// reference region, regardless of how many regions the run requested.
type Task struct {
	// Namespace is the grouped API surface to inventory (e.g. one service).
	Namespace string `json:"namespace"`

	// Region is the effective region the task runs against.
	Region string `json:"region"`

	// Global records that the namespace is not partitioned by region.
	Global bool `json:"global,omitempty"`
}

// Key returns the shared-state key for the task's endpoint.
func (t Task) Key() string {
	return t.Namespace + ":" + t.Region
}

// EnvelopeError carries the classified failure recorded on an envelope.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultEnvelope is the outcome of one executed operation. Envelopes are
// created per execution, persisted once, and read-only afterward.
type ResultEnvelope struct {
	Namespace string `json:"namespace"`
	Region    string `json:"region"`
	Operation string `json:"operation"`

	Success   bool `json:"success"`
	Paginated bool `json:"paginated"`

	// NotAvailable marks expected unavailability (endpoint unreachable or
	// operation missing from the client) rather than a real failure.
	NotAvailable bool `json:"not_available,omitempty"`

	Error *EnvelopeError `json:"error,omitempty"`

	// Payload is the operation output. Paginated calls aggregate as
	// {"pageCount": n, "pages": [...]}; inferred follow-up calls aggregate
	// their outputs under "results".
	Payload map[string]any `json:"payload,omitempty"`

	// InferredParams records parameter values inferred from prior listings.
	InferredParams map[string][]string `json:"inferred_params,omitempty"`

	ExecutedAt time.Time `json:"executed_at"`
}

// RunStatus represents the lifecycle state of a collection run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the persistent record of one collection run.
type Run struct {
	ID          string      `json:"id"`
	Status      RunStatus   `json:"status"`
	Regions     []string    `json:"regions"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Counters    RunCounters `json:"counters"`
	Errors      []TaskError `json:"errors,omitempty"`
}

// RunCounters aggregates per-operation outcomes across all tasks.
// Mutated under the scheduler lock; diagnostic only, the persisted envelopes
// are authoritative.
type RunCounters struct {
	TasksPlanned int `json:"tasks_planned"`
	TasksSkipped int `json:"tasks_skipped"`
	Executed     int `json:"operations_executed"`
	Successful   int `json:"operations_successful"`
	Failed       int `json:"operations_failed"`
	Skipped      int `json:"operations_skipped"`
}

// TaskError records a non-fatal failure raised by a task.
type TaskError struct {
	Namespace string `json:"namespace"`
	Region    string `json:"region"`
	Message   string `json:"message"`
}

// RunSummary is the user-facing digest produced at run end.
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Counters RunCounters   `json:"counters"`
	Errors   []TaskError   `json:"errors,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// UnavailableSet is the cross-task record of (namespace, region) endpoints
// confirmed unreachable. It grows monotonically during a run and is consulted
// before a task starts executing operations; it never shrinks within a run.
type UnavailableSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewUnavailableSet returns an empty set.
func NewUnavailableSet() *UnavailableSet {
	return &UnavailableSet{keys: make(map[string]struct{})}
}

// Add records an endpoint as unavailable.
func (u *UnavailableSet) Add(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys[key] = struct{}{}
}

// Contains reports whether the endpoint was already confirmed unavailable.
func (u *UnavailableSet) Contains(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.keys[key]
	return ok
}

// Len returns the number of recorded endpoints.
func (u *UnavailableSet) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.keys)
}
