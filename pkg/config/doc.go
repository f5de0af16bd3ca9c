// Package config loads and validates the run configuration.
//
// Configuration is a single YAML document with defaults for every field, so
// an empty file (or no file at all) yields a working setup. Values map
// directly onto the engine, executor, and indexer configuration types via
// the *Config helpers; struct tags drive validation.
package config
