// Package memory contains concrete core.MemoryStore implementations. The
// contract lives in the core package; depend on core.MemoryStore and select
// an implementation (in-process here, SQLite in memory/sqlite) at wiring time.
package memory
