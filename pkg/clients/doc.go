// Package clients provides the HTTP implementation of the executor's client
// factory. Clients speak a JSON target protocol: one POST per operation with
// the operation name in a header and parameters as the JSON body. Connect and
// read timeouts are baked into the underlying HTTP client so a hung endpoint
// cannot stall a task beyond its budget.
package clients
