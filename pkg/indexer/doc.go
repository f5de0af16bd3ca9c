// Package indexer builds the per-run resource index from persisted result
// envelopes. It aggregates operations per namespace and region, counts
// distinct resources in collection payloads, and applies per-namespace
// filters so shared or system-owned entries do not inflate the counts.
package indexer
