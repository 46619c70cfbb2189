// Package logging provides a minimal logging interface and adapters for meshgate.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, tools and the gateway use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - New for building a configured slog handler (level, format, output)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger, closeLog, err := logging.New(logging.Config{Level: "debug", Format: "text"})
//	if err != nil { ... }
//	defer closeLog()
//
// Log messages are dotted event keys ("agent.invoke.start") followed by
// key/value attributes.
package logging
