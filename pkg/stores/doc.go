// Package stores provides persistence layer implementations for cloudscan.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and CRUD operations for runs, result envelopes, and task events.
package stores
