// Package executor implements the execution engine: given one operation
// descriptor it decides how to call the operation (directly, via inferred
// parameters, or not at all), drives pagination, retries throttled calls,
// and classifies failures into result envelopes.
package executor

import "context"

// Paginator drives repeated calls for one paginated operation. The shape
// mirrors paginator helpers found in generated API clients.
type Paginator interface {
	// HasMorePages reports whether another page can be fetched.
	HasMorePages() bool

	// NextPage fetches the next page of results.
	NextPage(ctx context.Context) (map[string]any, error)
}

// Client is a ready-to-use API client for one (namespace, region) endpoint.
// Implementations are produced by the session/credential provider with
// connect/read timeouts and a reduced retry count baked in, so a hung
// endpoint cannot stall a task beyond its own deadlines.
type Client interface {
	// Invoke calls the named operation. Failures should be classified
	// engine.OpError values where the client can tell the cause; anything
	// else is treated as unexpected. A client that does not implement the
	// operation returns an absent-class error.
	Invoke(ctx context.Context, operation string, params map[string]any) (map[string]any, error)

	// Paginator returns a paginator bound to the operation, if the client
	// has one. Operations without a paginator keep their single page.
	Paginator(operation string) (Paginator, bool)
}

// ClientFactory yields clients per endpoint. Factories may be called from
// multiple tasks concurrently; the clients themselves are task-local.
type ClientFactory interface {
	NewClient(namespace, region string) (Client, error)
}
