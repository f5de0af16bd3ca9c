package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
)

// Config holds the execution-engine tunables.
type Config struct {
	// MaxPages bounds pagination per operation.
	MaxPages int

	// MaxFollowups bounds the number of inferred-parameter calls issued for
	// one operation.
	MaxFollowups int

	// MaxRetries is the number of additional attempts after a throttled
	// failure.
	MaxRetries int

	// BaseDelay is the first backoff delay; subsequent delays double.
	BaseDelay time.Duration

	// OperationTimeout is the wall-clock budget for one operation including
	// retries and backoff sleeps.
	OperationTimeout time.Duration

	// TryZeroArgMulti enables the best-effort zero-argument call for
	// operations declaring more than one required parameter. Some shapes
	// mark parameters required that the endpoint accepts omitted.
	TryZeroArgMulti bool

	// CatalogOperations are operations whose paginated fetch is clamped to a
	// single page (price catalogs, event histories and similar endless sets).
	CatalogOperations map[string]struct{}

	// ExpectedErrorMessages downgrades the log severity of unexpected errors
	// whose message contains one of these fragments.
	ExpectedErrorMessages []string

	// IdentifierHooks post-process inferred identifier values per namespace.
	IdentifierHooks map[string]IdentifierHook

	// Limiter throttles all outbound calls for the run. Optional.
	Limiter *rate.Limiter
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	if c.MaxFollowups <= 0 {
		c.MaxFollowups = 5
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 2 * time.Minute
	}
	if c.IdentifierHooks == nil {
		c.IdentifierHooks = DefaultIdentifierHooks()
	}
	return c
}

// Factory creates task-local executors over a shared client factory.
type Factory struct {
	clients ClientFactory
	cfg     Config
	log     zerolog.Logger
}

// NewFactory creates an executor factory.
func NewFactory(clients ClientFactory, cfg Config, log zerolog.Logger) *Factory {
	return &Factory{clients: clients, cfg: cfg.withDefaults(), log: log}
}

// ForTask returns a fresh executor for one (namespace, region) task. The
// executor's caches are task-local and are discarded with the task.
func (f *Factory) ForTask(namespace, region string) engine.TaskExecutor {
	return &Executor{
		namespace:   namespace,
		region:      region,
		clients:     f.clients,
		cfg:         f.cfg,
		log:         f.log.With().Str("namespace", namespace).Str("region", region).Logger(),
		listResults: make(map[string][]map[string]any),
		sleep:       sleepCtx,
	}
}

// Executor executes operations for one task. Not safe for concurrent use;
// each task owns exactly one executor.
type Executor struct {
	namespace string
	region    string
	clients   ClientFactory
	cfg       Config
	log       zerolog.Logger

	client    Client
	clientErr error

	// listResults caches flattened items from successful list-classified
	// calls, keyed by operation name, for parameter inference by sibling
	// operations in the same task. listOrder preserves insertion order so
	// inference is deterministic.
	listResults map[string][]map[string]any
	listOrder   []string

	// sleep is injectable so tests do not wait out real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs one operation according to the decision tree: call directly
// when no parameters are required, infer a single required parameter from
// cached listings, or (optionally) attempt a zero-argument call when several
// parameters are required. The bool reports whether anything was executed.
func (e *Executor) Execute(ctx context.Context, op catalog.OperationDescriptor) (*engine.ResultEnvelope, bool) {
	switch {
	case op.SafeToCall:
		return e.executeDirect(ctx, op), true
	case len(op.RequiredParams) == 1:
		return e.executeInferred(ctx, op)
	case e.cfg.TryZeroArgMulti:
		return e.executeBestEffort(ctx, op)
	default:
		return nil, false
	}
}

func (e *Executor) executeDirect(ctx context.Context, op catalog.OperationDescriptor) *engine.ResultEnvelope {
	client, err := e.getClient()
	if err != nil {
		return e.failure(op, err)
	}

	out, err := e.invokeWithRetry(ctx, client, op.Name, nil)
	if err != nil {
		return e.failure(op, err)
	}

	payload := out
	if op.Paginated {
		payload = e.paginate(ctx, client, op, out)
	}

	if isListOperation(op.Name) {
		e.cacheListResult(op.Name, payload)
	}

	return &engine.ResultEnvelope{
		Namespace:  e.namespace,
		Region:     e.region,
		Operation:  op.Name,
		Success:    true,
		Paginated:  op.Paginated,
		Payload:    payload,
		ExecutedAt: time.Now().UTC(),
	}
}

func (e *Executor) executeInferred(ctx context.Context, op catalog.OperationDescriptor) (*engine.ResultEnvelope, bool) {
	param := op.RequiredParams[0].Name
	values := e.inferValues(param)
	if len(values) == 0 {
		e.log.Debug().Str("operation", op.Name).Str("param", param).Msg("no cached candidates to infer from")
		return nil, false
	}

	client, err := e.getClient()
	if err != nil {
		return e.failure(op, err), true
	}

	var results []map[string]any
	for _, value := range values {
		out, err := e.invokeWithRetry(ctx, client, op.Name, map[string]any{param: value})
		if err != nil {
			if engine.IsAbsent(err) {
				// The client lacks the operation entirely; further values
				// cannot help.
				break
			}
			e.log.Debug().Str("operation", op.Name).Str("param", param).Str("value", value).
				Err(err).Msg("inferred call failed")
			continue
		}
		results = append(results, out)
	}
	if len(results) == 0 {
		return nil, false
	}

	return &engine.ResultEnvelope{
		Namespace:      e.namespace,
		Region:         e.region,
		Operation:      op.Name,
		Success:        true,
		Payload:        map[string]any{"results": toAnySlice(results)},
		InferredParams: map[string][]string{param: values},
		ExecutedAt:     time.Now().UTC(),
	}, true
}

// executeBestEffort attempts the operation without arguments even though the
// shape declares several required parameters. Failures are silent skips.
func (e *Executor) executeBestEffort(ctx context.Context, op catalog.OperationDescriptor) (*engine.ResultEnvelope, bool) {
	client, err := e.getClient()
	if err != nil {
		return nil, false
	}

	out, err := e.invokeWithRetry(ctx, client, op.Name, nil)
	if err != nil {
		e.log.Debug().Str("operation", op.Name).Int("required_params", len(op.RequiredParams)).
			Msg("zero-argument attempt rejected")
		return nil, false
	}

	payload := out
	if op.Paginated {
		payload = e.paginate(ctx, client, op, out)
	}

	if isListOperation(op.Name) {
		e.cacheListResult(op.Name, payload)
	}

	return &engine.ResultEnvelope{
		Namespace:  e.namespace,
		Region:     e.region,
		Operation:  op.Name,
		Success:    true,
		Paginated:  op.Paginated,
		Payload:    payload,
		ExecutedAt: time.Now().UTC(),
	}, true
}

// invokeWithRetry calls the operation, retrying throttled failures with
// exponential backoff. Connectivity and timeout failures are returned
// immediately: retrying an unreachable endpoint only burns the task budget.
// The whole call, retries and sleeps included, runs under the operation's
// wall-clock budget.
func (e *Executor) invokeWithRetry(ctx context.Context, client Client, operation string, params map[string]any) (map[string]any, error) {
	start := time.Now()
	deadlineErr := func() *engine.OpError {
		return engine.NewConnectivityError("operation budget exceeded", nil).
			WithCode("Timeout").
			WithEndpoint(e.namespace, e.region).
			WithOperation(operation)
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if time.Since(start) > e.cfg.OperationTimeout {
			return nil, deadlineErr()
		}
		if e.cfg.Limiter != nil {
			if err := e.cfg.Limiter.Wait(ctx); err != nil {
				return nil, engine.NewConnectivityError("rate limiter interrupted", err).
					WithOperation(operation)
			}
		}

		out, err := client.Invoke(ctx, operation, params)
		if err == nil {
			if time.Since(start) > e.cfg.OperationTimeout {
				// The call returned, but so late the task must treat it as
				// timed out; accepting it would reward hung endpoints.
				e.log.Warn().Str("operation", operation).Dur("elapsed", time.Since(start)).
					Msg("operation completed past its budget")
				return nil, deadlineErr()
			}
			return out, nil
		}

		lastErr = err
		if !engine.IsRetryable(err) {
			return nil, err
		}
		if attempt == e.cfg.MaxRetries {
			break
		}

		delay := e.cfg.BaseDelay << uint(attempt)
		e.log.Debug().Str("operation", operation).Dur("backoff", delay).
			Int("attempt", attempt+1).Msg("throttled, backing off")
		if err := e.sleep(ctx, delay); err != nil {
			return nil, engine.NewConnectivityError("interrupted during backoff", err).
				WithOperation(operation)
		}
	}
	return nil, lastErr
}

// paginate drives the operation's paginator, accumulating up to the page
// limit. Without a paginator the single page from the first call stands.
func (e *Executor) paginate(ctx context.Context, client Client, op catalog.OperationDescriptor, first map[string]any) map[string]any {
	pages := []map[string]any{first}

	limit := e.cfg.MaxPages
	if _, catalogOp := e.cfg.CatalogOperations[op.Name]; catalogOp {
		// Catalog-style operations page through unbounded reference data;
		// one page is enough for inventory purposes.
		limit = 1
	}

	if p, ok := client.Paginator(op.Name); ok && limit > 1 {
		fetched := e.drivePages(ctx, p, limit)
		if len(fetched) > 0 {
			pages = fetched
		}
	}

	if len(pages) > limit {
		pages = pages[:limit]
	}
	return map[string]any{
		"pageCount": len(pages),
		"pages":     toAnySlice(pages),
	}
}

func (e *Executor) drivePages(ctx context.Context, p Paginator, limit int) []map[string]any {
	var pages []map[string]any
	for p.HasMorePages() && len(pages) < limit {
		page, err := p.NextPage(ctx)
		if err != nil {
			e.log.Debug().Err(err).Msg("pagination stopped early")
			break
		}
		pages = append(pages, page)
	}
	if len(pages) == limit {
		e.log.Debug().Int("limit", limit).Msg("page limit reached")
	}
	return pages
}

// failure builds the envelope for a terminal error, classifying it and
// deciding log severity. Connectivity and operation-absent failures are
// expected and marked not-available rather than treated as defects.
func (e *Executor) failure(op catalog.OperationDescriptor, err error) *engine.ResultEnvelope {
	class := engine.Classify(err)
	code := errorCode(err, class)

	env := &engine.ResultEnvelope{
		Namespace:    e.namespace,
		Region:       e.region,
		Operation:    op.Name,
		Success:      false,
		Paginated:    op.Paginated,
		NotAvailable: class == engine.ErrorClassConnectivity || class == engine.ErrorClassAbsent,
		Error:        &engine.EnvelopeError{Code: code, Message: err.Error()},
		ExecutedAt:   time.Now().UTC(),
	}

	event := e.log.Debug()
	if class == engine.ErrorClassUnexpected && !e.expectedMessage(err) {
		event = e.log.Warn()
	}
	event.Str("operation", op.Name).Str("class", string(class)).Str("code", code).
		Msg("operation failed")

	return env
}

func (e *Executor) expectedMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range e.cfg.ExpectedErrorMessages {
		if strings.Contains(msg, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

// getClient returns the task's client, creating it on first use. Creation
// failures stick for the task: the endpoint is not going to appear later.
func (e *Executor) getClient() (Client, error) {
	if e.client != nil || e.clientErr != nil {
		return e.client, e.clientErr
	}
	client, err := e.clients.NewClient(e.namespace, e.region)
	if err != nil {
		e.clientErr = engine.NewConnectivityError("creating client", err).
			WithEndpoint(e.namespace, e.region)
		return nil, e.clientErr
	}
	e.client = client
	return e.client, nil
}

func errorCode(err error, class engine.ErrorClass) string {
	var opErr *engine.OpError
	if errors.As(err, &opErr) && opErr.Code != "" {
		return opErr.Code
	}
	switch class {
	case engine.ErrorClassThrottled:
		return "Throttling"
	case engine.ErrorClassConnectivity:
		return "EndpointNotAvailable"
	case engine.ErrorClassPermission:
		return "AccessDenied"
	case engine.ErrorClassAbsent:
		return "OperationNotFound"
	default:
		return "UnexpectedError"
	}
}

func (e *Executor) cacheListResult(operation string, payload map[string]any) {
	if _, ok := e.listResults[operation]; !ok {
		e.listOrder = append(e.listOrder, operation)
	}
	e.listResults[operation] = flattenItems(payload)
}

func isListOperation(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "list")
}

func toAnySlice(pages []map[string]any) []any {
	out := make([]any, len(pages))
	for i, p := range pages {
		out[i] = p
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
